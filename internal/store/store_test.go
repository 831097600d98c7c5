package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupKnowledge(t *testing.T) *KnowledgeStore {
	t.Helper()
	db, err := OpenKnowledge(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("failed to open knowledge db: %v", err)
	}
	s := NewKnowledgeStore(db, testLogger())
	t.Cleanup(func() { s.Close() })
	return s
}

func setupPipeline(t *testing.T) *PipelineStore {
	t.Helper()
	db, err := OpenPipeline(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("failed to open pipeline db: %v", err)
	}
	s := NewPipelineStore(db, testLogger())
	t.Cleanup(func() { s.Close() })
	return s
}

func item(id, content string, decision models.Relevance) models.KnowledgeItem {
	return models.KnowledgeItem{
		ID:        id,
		CreatedAt: time.Now().Unix(),
		Content:   content,
		Type:      models.ItemTypeFact,
		Bucket:    models.BucketPreferences,
		Decision:  decision,
	}
}

func TestKnowledgeStore(t *testing.T) {
	ctx := context.Background()
	ks := setupKnowledge(t)

	t.Run("Insert ignores duplicate ids", func(t *testing.T) {
		ks.Insert(item("k1", "User prefers dark mode", models.RelevanceRelevant))
		dup := item("k1", "something else entirely", models.RelevanceRelevant)
		ks.Insert(dup)

		all, err := ks.All(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("expected 1 item, got %d", len(all))
		}
		if all[0].Content != "User prefers dark mode" {
			t.Fatalf("expected first write to win, got %q", all[0].Content)
		}
	})

	t.Run("PendingAccepted honors override", func(t *testing.T) {
		ks.Insert(item("k2", "Ship the beta on Friday", models.RelevanceUncertain))
		ks.Insert(item("k3", "Random chatter", models.RelevanceNonrelevant))

		accept := models.RelevanceRelevant
		ks.SetOverride("k2", &accept)
		reject := models.RelevanceNonrelevant
		ks.SetOverride("k1", &reject)

		pending, err := ks.PendingAccepted(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pending) != 1 || pending[0].ID != "k2" {
			t.Fatalf("expected only k2 pending, got %+v", pending)
		}

		ks.SetOverride("k1", nil)
		pending, _ = ks.PendingAccepted(ctx)
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending after clearing override, got %d", len(pending))
		}
	})

	t.Run("MarkApplied retires items", func(t *testing.T) {
		ks.MarkApplied([]string{"k1", "k2"})
		pending, err := ks.PendingAccepted(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("expected no pending items, got %d", len(pending))
		}
		counts, err := ks.Counts(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts.Total != 3 || counts.Applied != 2 {
			t.Fatalf("unexpected counts: %+v", counts)
		}
	})

	t.Run("SetBucket reassigns", func(t *testing.T) {
		ks.SetBucket("k3", models.BucketPlans)
		got, err := ks.Get(ctx, "k3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.Bucket != models.BucketPlans {
			t.Fatalf("expected bucket plans, got %+v", got)
		}
	})

	t.Run("Get returns nil for missing", func(t *testing.T) {
		got, err := ks.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})
}

func TestKnowledgeStore_Collapse(t *testing.T) {
	ctx := context.Background()
	ks := setupKnowledge(t)

	ks.Insert(item("a", "User prefers dark mode", models.RelevanceRelevant))
	ks.Insert(item("b", "User likes dark UI theme", models.RelevanceRelevant))
	ks.Insert(item("c", "Meeting with Priya on Monday", models.RelevanceRelevant))

	ks.Collapse("a", "User prefers a dark UI theme", []string{"b"})

	all, err := ks.All(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 items after collapse, got %d", len(all))
	}
	kept, _ := ks.Get(ctx, "a")
	if kept == nil || kept.Content != "User prefers a dark UI theme" {
		t.Fatalf("expected canonical content on kept row, got %+v", kept)
	}
	dropped, _ := ks.Get(ctx, "b")
	if dropped != nil {
		t.Fatal("expected dropped row to be deleted")
	}
}

func TestPipelineStore_NextTaskIDConcurrent(t *testing.T) {
	ctx := context.Background()
	ps := setupPipeline(t)

	const callers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]bool{}
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := ps.NextTaskID(ctx, "AT")
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				errs <- &dupErr{id}
			}
			seen[id] = true
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if len(seen) != callers {
		t.Fatalf("expected %d distinct ids, got %d", callers, len(seen))
	}
	if !seen["AT-1"] || !seen["AT-40"] {
		t.Fatalf("expected contiguous sequence, got %v", seen)
	}

	other, err := ps.NextTaskID(ctx, "BN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != "BN-1" {
		t.Fatalf("expected independent counter per prefix, got %s", other)
	}
}

type dupErr struct{ id string }

func (e *dupErr) Error() string { return "duplicate task id " + e.id }

func TestPipelineStore_TasksAndSteps(t *testing.T) {
	ctx := context.Background()
	ps := setupPipeline(t)

	ps.InsertTranscript(models.CleanedTranscript{ID: "tr1", Text: "book flights", ChunkCount: 1, CreatedAt: 1})
	ps.InsertAnalysis(models.TranscriptAnalysis{
		ID: "an1", TranscriptID: "tr1", Summary: "travel",
		Tasks: []models.TaskDescription{{Title: "Book flights", Prompt: "Book flights to Bangalore"}},
	})
	ps.InsertTask(models.Task{
		ID: "TK-1", AnalysisID: "an1", Title: "Book flights", Prompt: "Book flights to Bangalore",
		Mode: models.TaskModeAsk, Status: models.TaskStatusNeedsInput,
		MissingConnection: "google-flights", PendingQuestion: "Connect google-flights",
		CreatedAt: time.Now().Unix(),
	})

	task, err := ps.Task(ctx, "TK-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task == nil || task.MissingConnection != "google-flights" {
		t.Fatalf("unexpected task: %+v", task)
	}

	status := models.TaskStatusOngoing
	started := int64(42)
	ps.UpdateTask("TK-1", TaskUpdate{Status: &status, StartedAt: &started})
	task, _ = ps.Task(ctx, "TK-1")
	if task.Status != models.TaskStatusOngoing || task.StartedAt == nil || *task.StartedAt != 42 {
		t.Fatalf("update not applied: %+v", task)
	}

	ps.AppendStep(models.ExecutionStep{TaskID: "TK-1", Index: 0, Description: "Bash ls", Status: "ok"})
	ps.AppendStep(models.ExecutionStep{TaskID: "TK-1", Index: 0, Description: "overwrite", Status: "ok"})
	ps.AppendStep(models.ExecutionStep{TaskID: "TK-1", Index: 1, Description: "Read go.mod", Status: "ok"})
	steps, err := ps.Steps(ctx, "TK-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 2 || steps[0].Description != "Bash ls" {
		t.Fatalf("expected write-once steps, got %+v", steps)
	}

	tasks, err := ps.Tasks(ctx, models.TaskFilter{Status: models.TaskStatusOngoing})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 ongoing task, got %d", len(tasks))
	}

	analyses, err := ps.Analyses(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analyses) != 1 || len(analyses[0].Tasks) != 1 {
		t.Fatalf("unexpected analyses: %+v", analyses)
	}
}

func TestResolveProject(t *testing.T) {
	projects := []models.Project{
		{ID: "1", Name: "Autoclawd"},
		{ID: "2", Name: "Bangalore Trip"},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"exact case-insensitive", "autoclawd", "1"},
		{"substring", "bangalore", "2"},
		{"no match", "kitchen remodel", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(projects, tt.in)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, got)
			}
		})
	}
}

func TestQueue_ClosedRejectsWork(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	if err := q.Go(func() {}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestQueue_AbandonedQueryKeepsResultToItself(t *testing.T) {
	q := NewQueue(4)
	defer q.Close()

	release := make(chan struct{})
	q.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := make(chan struct{})
	got, err := query(ctx, q, func() (int, error) {
		defer close(ran)
		return 42, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got != 0 {
		t.Fatalf("expected zero value from abandoned query, got %d", got)
	}

	close(release)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned job never ran")
	}
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestPipelineStore_CancelledReadWhileBusy(t *testing.T) {
	s := setupPipeline(t)
	s.InsertTask(models.Task{ID: "AT-1", Title: "Fix login", Status: models.TaskStatusUpcoming, CreatedAt: time.Now().Unix()})

	release := make(chan struct{})
	s.q.Go(func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks, err := s.Tasks(ctx, models.TaskFilter{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tasks != nil {
		t.Fatalf("expected no tasks from a cancelled read, got %+v", tasks)
	}

	close(release)
	tasks, err = s.Tasks(context.Background(), models.TaskFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "AT-1" {
		t.Fatalf("expected the inserted task, got %+v", tasks)
	}
}
