package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

var (
	colorMuted  = lipgloss.Color("#636B78")
	colorDim    = lipgloss.Color("#5C6370")
	colorRed    = lipgloss.Color("#E06C75")
	colorGreen  = lipgloss.Color("#98C379")
	colorAmber  = lipgloss.Color("#E5C07B")
	colorBlue   = lipgloss.Color("#61AFEF")
	colorPurple = lipgloss.Color("#C678DD")
	colorTeal   = lipgloss.Color("#56B6C2")
)

var (
	HeaderStyle  = lipgloss.NewStyle().Foreground(colorPurple).Bold(true)
	sessionStyle = lipgloss.NewStyle().Foreground(colorTeal)
	DimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	failStyle    = lipgloss.NewStyle().Foreground(colorRed)
	doneStyle    = lipgloss.NewStyle().Foreground(colorGreen)

	// Agent output is indented under a coloured left rule.
	toolCallStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorAmber).
			PaddingLeft(1)
	toolNameStyle   = lipgloss.NewStyle().Foreground(colorAmber)
	toolOutputStyle = lipgloss.NewStyle().Foreground(colorDim).MarginLeft(3)
	speechStyle     = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorBlue).
			PaddingLeft(1).
			PaddingRight(1)
)

// badge is how a task status shows up in a task list.
type badge struct {
	icon  string
	style lipgloss.Style
}

var (
	waitingBadge = badge{"○", lipgloss.NewStyle().Foreground(colorMuted)}
	blockedBadge = badge{"!", failStyle}

	badges = map[models.TaskStatus]badge{
		models.TaskStatusUpcoming:        waitingBadge,
		models.TaskStatusOngoing:         {"●", lipgloss.NewStyle().Foreground(colorAmber)},
		models.TaskStatusCompleted:       {"✓", doneStyle},
		models.TaskStatusNeedsInput:      blockedBadge,
		models.TaskStatusPendingApproval: blockedBadge,
		models.TaskStatusFiltered:        {"-", DimStyle},
	}
)

func badgeFor(s models.TaskStatus) badge {
	if b, ok := badges[s]; ok {
		return b
	}
	return waitingBadge
}
