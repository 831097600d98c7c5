package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

type fakeLLM struct {
	resp   string
	err    error
	prompt string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompt = prompt
	return f.resp, f.err
}

func (f *fakeLLM) IsAvailable(ctx context.Context) bool { return f.err == nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*store.ProjectStore, *store.PipelineStore) {
	t.Helper()
	dir := t.TempDir()
	pdb, err := store.OpenProjects(filepath.Join(dir, "projects.db"))
	if err != nil {
		t.Fatalf("open projects: %v", err)
	}
	ldb, err := store.OpenPipeline(filepath.Join(dir, "pipeline.db"))
	if err != nil {
		t.Fatalf("open pipeline: %v", err)
	}
	ps := store.NewProjectStore(pdb, testLogger())
	pl := store.NewPipelineStore(ldb, testLogger())
	t.Cleanup(func() {
		ps.Close()
		pl.Close()
	})
	return ps, pl
}

func transcript(pl *store.PipelineStore, text string) models.CleanedTranscript {
	tr := models.CleanedTranscript{ID: "tr-" + strings.Fields(text)[0], Text: text, ChunkCount: 1, CreatedAt: 1}
	pl.InsertTranscript(tr)
	return tr
}

func TestDetectHints(t *testing.T) {
	tests := []struct {
		text     string
		priority models.Priority
		cats     []string
	}{
		{"Urgent: the login bug is back", models.PriorityHigh, []string{"bug"}},
		{"asap book the meeting room", models.PriorityHigh, []string{"meeting"}},
		{"medium priority feature idea for search", models.PriorityMedium, []string{"feature", "idea"}},
		{"someday learn the cello", models.PriorityLow, nil},
		{"it is urgent that we go", models.PriorityNone, nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h := DetectHints(tt.text)
			if h.Priority != tt.priority {
				t.Fatalf("expected priority %q, got %q", tt.priority, h.Priority)
			}
			if strings.Join(h.Categories, ",") != strings.Join(tt.cats, ",") {
				t.Fatalf("expected categories %v, got %v", tt.cats, h.Categories)
			}
		})
	}
}

func TestParseBlocks(t *testing.T) {
	text := `PROJECT: Autoclawd
PEOPLE: Priya, none
PRIORITY: medium
TAGS: travel, planning
SUMMARY: User needs to travel for the offsite.
TASK_TITLE: Book flights
TASK_PROMPT: Book flights to Bangalore next week
---
FOO: bar
---
TASK_TITLE: Reserve hotel
---
PRIORITY: HIGH
TASK_TITLE: Tell Priya`

	p := ParseBlocks(text)
	if p.Project != "Autoclawd" || p.Priority != models.PriorityMedium || p.Summary != "User needs to travel for the offsite." {
		t.Fatalf("unexpected metadata: %+v", p)
	}
	if len(p.People) != 1 || p.People[0] != "Priya" {
		t.Fatalf("unexpected people: %v", p.People)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %+v", p.Tasks)
	}
	if p.Tasks[1].Prompt != "Reserve hotel" {
		t.Fatalf("missing prompt should default to title, got %q", p.Tasks[1].Prompt)
	}
}

func TestAnalyzer_ResolvesProjectAndHintOverrides(t *testing.T) {
	ctx := context.Background()
	ps, pl := setup(t)
	ps.Upsert(ctx, "Autoclawd", "/src/autoclawd")

	gw := &fakeLLM{resp: "PROJECT: autoclawd app\nPRIORITY: LOW\nSUMMARY: Fix login\nTASK_TITLE: Fix login bug\nTASK_PROMPT: Fix the login bug"}
	a := NewAnalyzer(gw, ps, pl, testLogger())

	an := a.Analyze(ctx, transcript(pl, "Urgent: fix the login bug in autoclawd"))
	if an.ProjectID != store.ProjectID("Autoclawd") || an.ProjectName != "Autoclawd" {
		t.Fatalf("expected resolved project, got %+v", an)
	}
	if an.Priority != models.PriorityHigh {
		t.Fatalf("hint should override model priority, got %q", an.Priority)
	}
	if !strings.Contains(gw.prompt, "Known projects: Autoclawd") || !strings.Contains(gw.prompt, "priority=HIGH") {
		t.Fatalf("prompt missing context: %s", gw.prompt)
	}

	stored, err := pl.Analyses(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 1 || len(stored[0].Tasks) != 1 {
		t.Fatalf("expected persisted analysis with one task, got %+v", stored)
	}
}

func TestAnalyzer_UnknownProjectPassesThrough(t *testing.T) {
	ctx := context.Background()
	ps, pl := setup(t)
	ps.Upsert(ctx, "Autoclawd", "")

	gw := &fakeLLM{resp: "PROJECT: Kitchen Remodel\nSUMMARY: Call the contractor"}
	an := NewAnalyzer(gw, ps, pl, testLogger()).Analyze(ctx, transcript(pl, "call the contractor about tiles"))
	if an.ProjectName != "Kitchen Remodel" || an.ProjectID != "" {
		t.Fatalf("expected unresolved raw name, got %+v", an)
	}
}

func TestAnalyzer_FailureStoresMinimalAnalysis(t *testing.T) {
	ctx := context.Background()
	ps, pl := setup(t)
	text := strings.Repeat("we should really plan the offsite properly ", 10)

	gw := &fakeLLM{err: errors.New("timeout")}
	an := NewAnalyzer(gw, ps, pl, testLogger()).Analyze(ctx, transcript(pl, text))
	if len([]rune(an.Summary)) != summaryFallback || len(an.Tasks) != 0 {
		t.Fatalf("unexpected fallback analysis: %+v", an)
	}

	stored, _ := pl.Analyses(ctx, 10)
	if len(stored) != 1 {
		t.Fatalf("expected fallback analysis persisted, got %d", len(stored))
	}
}
