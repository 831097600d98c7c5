package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/skills"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

// Creator turns analysis task descriptions into persisted, mode-tagged tasks.
type Creator struct {
	planner  *Planner
	registry *skills.Registry
	rules    *skills.Rules
	pipeline *store.PipelineStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewCreator(planner *Planner, registry *skills.Registry, rules *skills.Rules, pipeline *store.PipelineStore, logger *slog.Logger) *Creator {
	if rules == nil {
		rules = &skills.Rules{}
	}
	return &Creator{
		planner:  planner,
		registry: registry,
		rules:    rules,
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateAll creates one task per description in the analysis. Failures are
// logged and skipped.
func (c *Creator) CreateAll(ctx context.Context, an models.TranscriptAnalysis) []models.Task {
	var created []models.Task
	for _, desc := range an.Tasks {
		t, err := c.Create(ctx, an, desc)
		if err != nil {
			c.logger.Error("failed to create task", "analysis_id", an.ID, "title", desc.Title, "error", err)
			continue
		}
		created = append(created, t)
	}
	return created
}

// Create plans and persists a single task.
func (c *Creator) Create(ctx context.Context, an models.TranscriptAnalysis, desc models.TaskDescription) (models.Task, error) {
	plan := c.planner.Plan(ctx, desc, an.ProjectName)
	skill := c.registry.Resolve(plan.SkillID)
	now := c.now()

	task := models.Task{
		AnalysisID:    an.ID,
		Title:         desc.Title,
		Prompt:        skill.Template.Render(skills.Values{skills.SlotTitle: desc.Title, skills.SlotPrompt: desc.Prompt, skills.SlotProject: an.ProjectName, skills.SlotDate: now.Format("2006-01-02")}),
		ProjectID:     an.ProjectID,
		ProjectName:   an.ProjectName,
		SkillID:       skill.ID,
		WorkflowSteps: []string{},
		Attachments:   []string{},
		CreatedAt:     now.Unix(),
	}

	var missing string
	if skill.Workflow != "" {
		if wf, ok := c.rules.Workflow(skill.Workflow); ok {
			task.WorkflowID = wf.ID
			task.WorkflowSteps = append(task.WorkflowSteps, wf.Steps...)
			missing = c.rules.MissingConnection(wf)
		} else {
			c.logger.Warn("skill references unknown workflow", "skill", skill.ID, "workflow", skill.Workflow)
		}
	}

	task.Mode, task.Status, task.PendingQuestion = resolve(plan, missing, c.rules, desc)
	task.MissingConnection = missing

	id, err := c.pipeline.NextTaskID(ctx, TaskPrefix(an.ProjectName))
	if err != nil {
		return models.Task{}, fmt.Errorf("allocate task id: %w", err)
	}
	task.ID = id

	if err := c.pipeline.InsertTask(task); err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	c.logger.Info("task created",
		"task_id", task.ID,
		"skill", task.SkillID,
		"mode", task.Mode,
		"status", task.Status,
	)
	return task, nil
}

// resolve applies the mode/status precedence: unmet connection, needed
// input, autonomy rule, then certainty.
func resolve(plan Plan, missing string, rules *skills.Rules, desc models.TaskDescription) (models.TaskMode, models.TaskStatus, string) {
	if missing != "" {
		return models.TaskModeAsk, models.TaskStatusNeedsInput,
			fmt.Sprintf("Connect %s so I can do this. Reply once it is set up, or tell me how to proceed without it.", missing)
	}
	if plan.NeedsInput != "" {
		return models.TaskModeAsk, models.TaskStatusNeedsInput, plan.NeedsInput
	}
	if _, ok := rules.MatchAutonomy(desc.Title + " " + desc.Prompt); ok {
		return models.TaskModeAuto, models.TaskStatusUpcoming, ""
	}
	switch plan.Certainty {
	case models.CertaintyHigh:
		return models.TaskModeAuto, models.TaskStatusUpcoming, ""
	case models.CertaintyMedium:
		return models.TaskModeAsk, models.TaskStatusPendingApproval, ""
	default:
		return models.TaskModeAsk, models.TaskStatusNeedsInput,
			fmt.Sprintf("What exactly should I do for %q?", desc.Title)
	}
}
