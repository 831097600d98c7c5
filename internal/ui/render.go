package ui

import (
	"fmt"
	"strings"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/agent"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

const maxResultLines = 6

// RenderEvent formats one agent event for a terminal. Events with nothing
// to show render as "".
func RenderEvent(ev agent.Event) string {
	switch ev.Type {
	case agent.EventInit:
		return sessionStyle.Render("session " + ev.SessionID)
	case agent.EventText:
		if strings.TrimSpace(ev.Text) == "" {
			return ""
		}
		return speechStyle.Render(ev.Text)
	case agent.EventToolUse:
		line := toolNameStyle.Render(ev.ToolName)
		if ev.Detail != "" {
			line += " " + DimStyle.Render(truncate(ev.Detail, 120))
		}
		return toolCallStyle.Render(line)
	case agent.EventToolResult:
		text := clipLines(ev.Text, maxResultLines)
		if ev.IsError {
			return toolOutputStyle.Render(failStyle.Render(text))
		}
		return toolOutputStyle.Render(text)
	case agent.EventResult:
		return doneStyle.Render("✓ done") + " " + ev.Text
	case agent.EventError:
		return failStyle.Render("✗ " + ev.Text)
	case agent.EventStatus:
		return DimStyle.Render(ev.Text)
	}
	return ""
}

// RenderTask formats a task as a single status line, plus the pending
// question when there is one.
func RenderTask(t models.Task) string {
	var sb strings.Builder
	b := badgeFor(t.Status)
	sb.WriteString(b.style.Render(b.icon + " " + t.ID))
	sb.WriteString(" ")
	sb.WriteString(t.Title)
	sb.WriteString(DimStyle.Render(fmt.Sprintf(" [%s/%s]", t.Mode, t.Status)))
	if t.ProjectName != "" {
		sb.WriteString(DimStyle.Render(" " + t.ProjectName))
	}
	if t.PendingQuestion != "" {
		sb.WriteString("\n    ")
		sb.WriteString(failStyle.Render("? " + t.PendingQuestion))
	}
	return sb.String()
}

// RenderTaskList renders tasks under a header.
func RenderTaskList(tasks []models.Task) string {
	if len(tasks) == 0 {
		return DimStyle.Render("No tasks.")
	}
	lines := []string{HeaderStyle.Render("TASKS")}
	for _, t := range tasks {
		lines = append(lines, RenderTask(t))
	}
	return strings.Join(lines, "\n")
}

func clipLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
