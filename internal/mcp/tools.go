package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

// Tools implements the MCP tool handlers.
type Tools struct {
	deps Deps
}

func (t *Tools) ListTasksDefinition() mcp.Tool {
	return mcp.NewTool("list_tasks",
		mcp.WithDescription("List pipeline tasks, newest first."),
		mcp.WithString("status",
			mcp.Description("Filter by status: upcoming, pending_approval, needs_input, ongoing, completed, filtered"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
	)
}

func (t *Tools) ListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.TaskStatus(req.GetString("status", ""))
	if status != "" && !status.IsValid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status %q", status)), nil
	}
	limit := int(req.GetFloat("limit", 20))

	tasks, err := t.deps.Pipeline.Tasks(ctx, models.TaskFilter{Status: status, Limit: limit})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks."), nil
	}

	var sb strings.Builder
	for _, task := range tasks {
		fmt.Fprintf(&sb, "- **%s** [%s/%s] %s", task.ID, task.Mode, task.Status, task.Title)
		if task.ProjectName != "" {
			fmt.Fprintf(&sb, " (%s)", task.ProjectName)
		}
		sb.WriteString("\n")
		if task.PendingQuestion != "" {
			fmt.Fprintf(&sb, "  Question: %s\n", task.PendingQuestion)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) WorldModelDefinition() mcp.Tool {
	return mcp.NewTool("world_model",
		mcp.WithDescription("Read the current world model and todo list documents."),
	)
}

func (t *Tools) WorldModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documents, err := t.deps.Documents.Read()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read documents: %v", err)), nil
	}
	var sb strings.Builder
	sb.WriteString("## World model\n\n")
	sb.WriteString(orEmpty(documents.WorldModel))
	sb.WriteString("\n\n## Todos\n\n")
	sb.WriteString(orEmpty(documents.Todos))
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) SynthesizeDefinition() mcp.Tool {
	return mcp.NewTool("synthesize",
		mcp.WithDescription("Fold pending accepted knowledge items into the world model and todo list now."),
	)
}

func (t *Tools) Synthesize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.deps.Synthesizer.Synthesize(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("synthesis failed: %v", err)), nil
	}
	if res.Pending == 0 {
		return mcp.NewToolResultText("Nothing pending."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Applied %d of %d pending items (world model updated: %t, todos updated: %t).",
		res.Applied, res.Pending, res.WorldModelUpdated, res.TodosUpdated,
	)), nil
}

func (t *Tools) IngestDefinition() mcp.Tool {
	return mcp.NewTool("ingest_transcript",
		mcp.WithDescription("Run text through the capture pipeline as if it had been spoken."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("What was said"),
		),
	)
}

func (t *Tools) Ingest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	res, err := t.deps.Processor.IngestText(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Extracted %d knowledge item(s).\n", len(res.Items))
	for _, item := range res.Items {
		fmt.Fprintf(&sb, "- [%s/%s] %s (%s)\n", item.Bucket, item.Type, item.Content, item.Decision)
	}
	if len(res.Tasks) > 0 {
		fmt.Fprintf(&sb, "\nCreated %d task(s).\n", len(res.Tasks))
		for _, task := range res.Tasks {
			fmt.Fprintf(&sb, "- **%s** [%s/%s] %s\n", task.ID, task.Mode, task.Status, task.Title)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) AnswerDefinition() mcp.Tool {
	return mcp.NewTool("answer_task",
		mcp.WithDescription("Answer a task's pending question so it can run."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task ID, e.g. AT-3"),
		),
		mcp.WithString("answer",
			mcp.Required(),
			mcp.Description("The answer to the task's pending question"),
		),
	)
}

func (t *Tools) Answer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := t.deps.Runner.Answer(ctx, req.GetString("id", ""), req.GetString("answer", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s is %s.", task.ID, task.Status)), nil
}

func orEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty)"
	}
	return s
}
