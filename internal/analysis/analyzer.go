package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

const (
	analysisMaxTokens = 1024
	summaryFallback   = 120
)

var (
	leadingPriority = regexp.MustCompile(`(?i)^\W*(urgent(?:ly)?|asap|high[ -]priority|medium[ -]priority|low[ -]priority|someday|whenever)\b`)
	categoryHints   = regexp.MustCompile(`(?i)\b(bug|feature|meeting|idea|reminder|research|deadline|follow[ -]up)\b`)
)

// Hints are lightweight signals found by regex before the model runs.
type Hints struct {
	Priority   models.Priority
	Categories []string
}

// DetectHints scans text for a leading priority marker and category words.
func DetectHints(text string) Hints {
	var h Hints
	if m := leadingPriority.FindStringSubmatch(text); m != nil {
		switch w := strings.ToLower(m[1]); {
		case strings.HasPrefix(w, "urgent"), w == "asap", strings.HasPrefix(w, "high"):
			h.Priority = models.PriorityHigh
		case strings.HasPrefix(w, "medium"):
			h.Priority = models.PriorityMedium
		default:
			h.Priority = models.PriorityLow
		}
	}
	seen := make(map[string]bool)
	for _, m := range categoryHints.FindAllStringSubmatch(text, -1) {
		c := strings.ReplaceAll(strings.ToLower(m[1]), " ", "-")
		if !seen[c] {
			seen[c] = true
			h.Categories = append(h.Categories, c)
		}
	}
	return h
}

// Analyzer reads a cleaned transcript for priority, project, people, tags,
// a summary and any task descriptions, and persists the result.
type Analyzer struct {
	llm      llm.Gateway
	projects *store.ProjectStore
	pipeline *store.PipelineStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewAnalyzer(gw llm.Gateway, projects *store.ProjectStore, pipeline *store.PipelineStore, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		llm:      gw,
		projects: projects,
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
	}
}

const analysisPrompt = `Analyze what the user said and extract structure.

Known projects: %s
Detected hints: %s

Output one or more blocks separated by a line containing only ---.
Each block uses KEY: value lines with these keys:
PROJECT: project name, or none
PEOPLE: comma-separated names, or none
PRIORITY: HIGH, MEDIUM, LOW, or none
TAGS: comma-separated short tags
SUMMARY: one sentence
TASK_TITLE: short imperative title, only if there is something to do
TASK_PROMPT: full instruction for an assistant to carry out the task

Use one block per task. Output nothing else.

Transcript:
%s`

// Analyze never fails: when inference fails it still stores a minimal
// analysis so the transcript keeps its place in history.
func (a *Analyzer) Analyze(ctx context.Context, tr models.CleanedTranscript) models.TranscriptAnalysis {
	hints := DetectHints(tr.Text)

	known, err := a.projects.List(ctx)
	if err != nil {
		a.logger.Warn("failed to list projects", "error", err)
	}

	an := models.TranscriptAnalysis{
		ID:           ulid.Make().String(),
		TranscriptID: tr.ID,
		People:       []string{},
		Tags:         []string{},
		Tasks:        []models.TaskDescription{},
		CreatedAt:    a.now().Unix(),
	}

	resp, err := a.llm.Generate(ctx, buildPrompt(tr.Text, known, hints), analysisMaxTokens)
	if err != nil {
		a.logger.Warn("analysis inference failed, storing minimal analysis", "transcript_id", tr.ID, "error", err)
		an.Summary = prefix(tr.Text, summaryFallback)
		an.Priority = hints.Priority
		an.Tags = append(an.Tags, hints.Categories...)
		a.persist(an)
		return an
	}

	parsed := ParseBlocks(resp)
	an.Priority = parsed.Priority
	an.People = append(an.People, parsed.People...)
	an.Tags = append(an.Tags, parsed.Tags...)
	an.Summary = parsed.Summary
	an.Tasks = append(an.Tasks, parsed.Tasks...)
	if an.Summary == "" {
		an.Summary = prefix(tr.Text, summaryFallback)
	}
	if hints.Priority != models.PriorityNone {
		an.Priority = hints.Priority
	}

	if parsed.Project != "" {
		if p := store.Resolve(known, parsed.Project); p != nil {
			an.ProjectName = p.Name
			an.ProjectID = p.ID
		} else {
			an.ProjectName = parsed.Project
		}
	}

	a.persist(an)
	a.logger.Info("transcript analyzed",
		"transcript_id", tr.ID,
		"project", an.ProjectName,
		"priority", an.Priority,
		"count", len(an.Tasks),
	)
	return an
}

func (a *Analyzer) persist(an models.TranscriptAnalysis) {
	if err := a.pipeline.InsertAnalysis(an); err != nil {
		a.logger.Error("failed to persist analysis", "analysis_id", an.ID, "error", err)
	}
}

func buildPrompt(text string, known []models.Project, hints Hints) string {
	names := make([]string, 0, len(known))
	for _, p := range known {
		names = append(names, p.Name)
	}
	projectList := "none"
	if len(names) > 0 {
		projectList = strings.Join(names, ", ")
	}

	var hintParts []string
	if hints.Priority != models.PriorityNone {
		hintParts = append(hintParts, "priority="+string(hints.Priority))
	}
	if len(hints.Categories) > 0 {
		hintParts = append(hintParts, "categories="+strings.Join(hints.Categories, ","))
	}
	hintText := "none"
	if len(hintParts) > 0 {
		hintText = strings.Join(hintParts, "; ")
	}
	return fmt.Sprintf(analysisPrompt, projectList, hintText, text)
}

// Parsed is the permissive reading of the model's block output.
type Parsed struct {
	Project  string
	People   []string
	Priority models.Priority
	Tags     []string
	Summary  string
	Tasks    []models.TaskDescription
}

// ParseBlocks reads `---`-separated KEY: value blocks. Unknown keys are
// ignored and a block with neither SUMMARY nor TASK_TITLE is discarded.
// Metadata comes from the first block that sets each field; every block
// with a TASK_TITLE contributes a task.
func ParseBlocks(text string) Parsed {
	var p Parsed
	for _, block := range splitBlocks(text) {
		fields := parseFields(block)
		summary, title := fields["SUMMARY"], fields["TASK_TITLE"]
		if summary == "" && title == "" {
			continue
		}

		if p.Project == "" {
			p.Project = cleanValue(fields["PROJECT"])
		}
		if len(p.People) == 0 {
			p.People = splitList(fields["PEOPLE"])
		}
		if p.Priority == models.PriorityNone {
			p.Priority = parsePriority(fields["PRIORITY"])
		}
		if len(p.Tags) == 0 {
			p.Tags = splitList(fields["TAGS"])
		}
		if p.Summary == "" {
			p.Summary = summary
		}

		if title != "" {
			prompt := fields["TASK_PROMPT"]
			if prompt == "" {
				prompt = title
			}
			p.Tasks = append(p.Tasks, models.TaskDescription{Title: title, Prompt: prompt})
		}
	}
	return p
}

func splitBlocks(text string) []string {
	var blocks []string
	var cur strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "---" {
			blocks = append(blocks, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	return append(blocks, cur.String())
}

func parseFields(block string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(strings.Trim(key, "*- ")))
		if _, dup := fields[key]; dup {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none", "-", "n/a", "unknown":
		return ""
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := cleanValue(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parsePriority(s string) models.Priority {
	p := models.Priority(strings.ToUpper(cleanValue(s)))
	if !p.IsValid() {
		return models.PriorityNone
	}
	return p
}

func prefix(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
