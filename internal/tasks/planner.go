package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/skills"
)

const planMaxTokens = 256

// Plan is the planner's execution decision for one task description.
type Plan struct {
	SkillID    string
	Certainty  models.Certainty
	NeedsInput string
}

// Planner picks a skill and a certainty for a task with one inference call.
type Planner struct {
	llm      llm.Gateway
	registry *skills.Registry
	logger   *slog.Logger
}

func NewPlanner(gw llm.Gateway, registry *skills.Registry, logger *slog.Logger) *Planner {
	return &Planner{llm: gw, registry: registry, logger: logger}
}

const planPrompt = `Decide how an assistant should carry out this task.

Available skills:
%s
Task title: %s
Task: %s
Project: %s

Answer with exactly these lines:
SKILL: one skill id from the list
CERTAINTY: high, medium, or low (how sure you are it can run without asking the user)
NEEDS_INPUT: what you must ask the user first, or none`

// Plan never fails. Unknown skills map to general and an unreadable
// certainty is left empty, which downstream treats as low.
func (p *Planner) Plan(ctx context.Context, desc models.TaskDescription, project string) Plan {
	var sb strings.Builder
	for _, s := range p.registry.List() {
		fmt.Fprintf(&sb, "- %s: %s\n", s.ID, s.Description)
	}
	if project == "" {
		project = "none"
	}

	resp, err := p.llm.Generate(ctx, fmt.Sprintf(planPrompt, sb.String(), desc.Title, desc.Prompt, project), planMaxTokens)
	if err != nil {
		p.logger.Warn("task planning failed", "title", desc.Title, "error", err)
		return Plan{SkillID: skills.GeneralID}
	}
	return p.parse(resp)
}

func (p *Planner) parse(resp string) Plan {
	plan := Plan{SkillID: skills.GeneralID}
	for _, line := range strings.Split(resp, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "SKILL":
			if s, ok := p.registry.Get(value); ok {
				plan.SkillID = s.ID
			} else if value != "" {
				p.logger.Debug("planner chose unknown skill", "skill", value)
			}
		case "CERTAINTY":
			switch c := models.Certainty(strings.ToLower(value)); c {
			case models.CertaintyHigh, models.CertaintyMedium, models.CertaintyLow:
				plan.Certainty = c
			}
		case "NEEDS_INPUT":
			switch strings.ToLower(value) {
			case "", "none", "no", "n/a", "-":
			default:
				plan.NeedsInput = value
			}
		}
	}
	return plan
}
