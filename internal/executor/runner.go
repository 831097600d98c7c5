package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/agent"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrAlreadyRunning    = errors.New("task already running")
)

const maxStepOutput = 2000

// Runner executes pipeline tasks through agent sessions and records their
// progress as execution steps.
type Runner struct {
	agent    agent.Config
	pipeline *store.PipelineStore
	projects *store.ProjectStore
	hub      *Hub
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner builds a runner. base supplies the command, args and auth
// tokens; the working directory and resume id are set per task. projects and
// hub may be nil.
func NewRunner(base agent.Config, pipeline *store.PipelineStore, projects *store.ProjectStore, hub *Hub, logger *slog.Logger) *Runner {
	return &Runner{
		agent:    base,
		pipeline: pipeline,
		projects: projects,
		hub:      hub,
		logger:   logger,
		now:      time.Now,
		running:  map[string]bool{},
	}
}

// Running reports whether taskID currently has a live session.
func (r *Runner) Running(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[taskID]
}

func (r *Runner) claim(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[taskID] {
		return false
	}
	r.running[taskID] = true
	return true
}

func (r *Runner) release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, taskID)
}

// Run executes an upcoming task to completion. It blocks until the agent
// session ends.
func (r *Runner) Run(ctx context.Context, taskID string) error {
	// Claim before reading the status so a run that finished between our
	// read and our claim is never repeated.
	if !r.claim(taskID) {
		return ErrAlreadyRunning
	}
	defer r.release(taskID)

	task, err := r.pipeline.Task(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task == nil {
		return ErrTaskNotFound
	}
	if task.Status != models.TaskStatusUpcoming {
		return fmt.Errorf("%w: cannot run task in status %s", ErrInvalidTransition, task.Status)
	}

	cfg := r.agent
	cfg.Logger = r.logger
	cfg.ResumeID = task.AgentSessionID
	cfg.Dir = r.projectPath(ctx, task.ProjectID)

	ongoing := models.TaskStatusOngoing
	started := r.now().Unix()
	r.pipeline.UpdateTask(taskID, store.TaskUpdate{Status: &ongoing, StartedAt: &started})

	sess, err := agent.Start(ctx, cfg, task.Prompt)
	if err != nil {
		r.logger.Error("agent spawn failed", "task_id", taskID, "error", err)
		upcoming := models.TaskStatusUpcoming
		r.pipeline.UpdateTask(taskID, store.TaskUpdate{Status: &upcoming})
		return fmt.Errorf("start agent: %w", err)
	}

	r.logger.Info("task started", "task_id", taskID, "dir", cfg.Dir)
	outcome := r.consume(taskID, sess)
	sess.Wait()

	switch outcome.status {
	case models.TaskStatusCompleted:
		completed := r.now().Unix()
		status := models.TaskStatusCompleted
		empty := ""
		r.pipeline.UpdateTask(taskID, store.TaskUpdate{Status: &status, CompletedAt: &completed, PendingQuestion: &empty})
		r.logger.Info("task completed", "task_id", taskID, "steps", outcome.steps)
	default:
		status := models.TaskStatusNeedsInput
		question := outcome.question
		r.pipeline.UpdateTask(taskID, store.TaskUpdate{Status: &status, PendingQuestion: &question})
		r.logger.Warn("task needs input", "task_id", taskID, "question", question)
	}
	return nil
}

type outcome struct {
	status   models.TaskStatus
	question string
	steps    int
}

type pendingStep struct {
	index       int
	description string
	createdAt   int64
}

// consume drains the session's events. Each tool use becomes one execution
// step, written when its result arrives.
func (r *Runner) consume(taskID string, sess *agent.Session) outcome {
	out := outcome{status: models.TaskStatusNeedsInput, question: "The agent stopped without a result. How should I proceed?"}
	pending := map[string]pendingStep{}
	var order []string
	next := 0
	closing := false

	for ev := range sess.Events() {
		if r.hub != nil {
			r.hub.Publish(TaskEvent{TaskID: taskID, Event: ev})
		}

		switch ev.Type {
		case agent.EventInit:
			if ev.SessionID != "" {
				id := ev.SessionID
				r.pipeline.UpdateTask(taskID, store.TaskUpdate{AgentSessionID: &id})
			}
		case agent.EventToolUse:
			desc := ev.ToolName
			if ev.Detail != "" {
				desc += " " + ev.Detail
			}
			key := ev.ToolID
			if key == "" {
				key = fmt.Sprintf("anon-%d", next)
			}
			if _, seen := pending[key]; seen {
				continue
			}
			pending[key] = pendingStep{index: next, description: desc, createdAt: r.now().Unix()}
			order = append(order, key)
			next++
		case agent.EventToolResult:
			step, ok := pending[ev.ToolID]
			if !ok {
				continue
			}
			delete(pending, ev.ToolID)
			status := "ok"
			if ev.IsError {
				status = "error"
			}
			r.appendStep(taskID, step, status, ev.Text)
			out.steps++
		case agent.EventResult:
			out.status = models.TaskStatusCompleted
			out.question = ""
		case agent.EventError:
			out.status = models.TaskStatusNeedsInput
			out.question = fmt.Sprintf("The agent stopped: %s. How should I proceed?", strings.TrimSuffix(ev.Text, "."))
		}

		if ev.Type.Terminal() && !closing {
			closing = true
			go sess.Close()
		}
	}

	for _, key := range order {
		if step, ok := pending[key]; ok {
			r.appendStep(taskID, step, "incomplete", "")
			out.steps++
		}
	}
	return out
}

func (r *Runner) appendStep(taskID string, step pendingStep, status, output string) {
	if len(output) > maxStepOutput {
		output = output[:maxStepOutput] + "..."
	}
	r.pipeline.AppendStep(models.ExecutionStep{
		TaskID:      taskID,
		Index:       step.index,
		Description: step.description,
		Status:      status,
		CreatedAt:   step.createdAt,
		Output:      output,
	})
}

func (r *Runner) projectPath(ctx context.Context, projectID string) string {
	if projectID == "" || r.projects == nil {
		return ""
	}
	p, err := r.projects.Get(ctx, projectID)
	if err != nil {
		r.logger.Warn("project lookup failed", "project_id", projectID, "error", err)
		return ""
	}
	if p == nil {
		return ""
	}
	return p.Path
}

// Approve moves a pending_approval task to upcoming.
func (r *Runner) Approve(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := r.pipeline.Task(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if task.Status != models.TaskStatusPendingApproval {
		return nil, fmt.Errorf("%w: cannot approve task in status %s", ErrInvalidTransition, task.Status)
	}
	status := models.TaskStatusUpcoming
	r.pipeline.UpdateTask(taskID, store.TaskUpdate{Status: &status})
	task.Status = status
	return task, nil
}

// Answer attaches the user's answer to the prompt and moves a needs_input
// task back to upcoming.
func (r *Runner) Answer(ctx context.Context, taskID, answer string) (*models.Task, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("answer must not be empty")
	}
	task, err := r.pipeline.Task(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if task.Status != models.TaskStatusNeedsInput {
		return nil, fmt.Errorf("%w: cannot answer task in status %s", ErrInvalidTransition, task.Status)
	}

	prompt := task.Prompt
	if task.PendingQuestion != "" {
		prompt += "\n\nQuestion: " + task.PendingQuestion
	}
	prompt += "\nAnswer: " + answer
	status := models.TaskStatusUpcoming
	empty := ""
	r.pipeline.UpdateTask(taskID, store.TaskUpdate{Status: &status, Prompt: &prompt, PendingQuestion: &empty})

	task.Prompt = prompt
	task.Status = status
	task.PendingQuestion = ""
	return task, nil
}

// RunUpcoming runs every auto-mode upcoming task in creation order and
// returns how many were started.
func (r *Runner) RunUpcoming(ctx context.Context) (int, error) {
	tasks, err := r.pipeline.Tasks(ctx, models.TaskFilter{Status: models.TaskStatusUpcoming, Mode: models.TaskModeAuto})
	if err != nil {
		return 0, fmt.Errorf("list upcoming tasks: %w", err)
	}
	ran := 0
	for i := len(tasks) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if err := r.Run(ctx, tasks[i].ID); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				continue
			}
			r.logger.Error("task run failed", "task_id", tasks[i].ID, "error", err)
			continue
		}
		ran++
	}
	return ran, nil
}

// Loop polls for upcoming auto tasks until ctx is done.
func (r *Runner) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.RunUpcoming(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("upcoming task sweep failed", "error", err)
			} else if n > 0 {
				r.logger.Info("upcoming task sweep", "count", n)
			}
		}
	}
}
