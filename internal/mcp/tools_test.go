package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/analysis"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/docs"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/knowledge"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/pipeline"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/skills"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/tasks"
)

// scriptedLLM answers by prompt prefix.
type scriptedLLM map[string]string

func (s scriptedLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	for prefix, resp := range s {
		if strings.HasPrefix(prompt, prefix) {
			return resp, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func (s scriptedLLM) IsAvailable(ctx context.Context) bool { return true }

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

type fixture struct {
	tools    *Tools
	items    *store.KnowledgeStore
	pipeline *store.PipelineStore
	docs     *docs.Store
}

func setup(t *testing.T, gw scriptedLLM) fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kdb, err := store.OpenKnowledge(filepath.Join(dir, "knowledge.db"))
	if err != nil {
		t.Fatalf("open knowledge: %v", err)
	}
	items := store.NewKnowledgeStore(kdb, logger)
	t.Cleanup(func() { items.Close() })

	pdb, err := store.OpenPipeline(filepath.Join(dir, "pipeline.db"))
	if err != nil {
		t.Fatalf("open pipeline: %v", err)
	}
	ps := store.NewPipelineStore(pdb, logger)
	t.Cleanup(func() { ps.Close() })

	jdb, err := store.OpenProjects(filepath.Join(dir, "projects.db"))
	if err != nil {
		t.Fatalf("open projects: %v", err)
	}
	projects := store.NewProjectStore(jdb, logger)
	t.Cleanup(func() { projects.Close() })

	documents := docs.NewStore(filepath.Join(dir, "docs"))
	diag := knowledge.NewDiagnostics()
	registry := skills.NewRegistry(nil)
	synth := knowledge.NewSynthesizer(gw, items, documents, nil, diag, logger)

	proc := pipeline.NewProcessor(pipeline.Config{
		Classifier:  knowledge.NewClassifier(gw, items, nil, diag, logger),
		Synthesizer: synth,
		Items:       items,
		Cleaner:     pipeline.NewCleaner(gw, logger),
		Analyzer:    analysis.NewAnalyzer(gw, projects, ps, logger),
		Creator:     tasks.NewCreator(tasks.NewPlanner(gw, registry, logger), registry, nil, ps, logger),
		Pipeline:    ps,
		Threshold:   100,
		Logger:      logger,
	})

	return fixture{
		tools: &Tools{deps: Deps{
			Processor:   proc,
			Synthesizer: synth,
			Documents:   documents,
			Pipeline:    ps,
		}},
		items:    items,
		pipeline: ps,
		docs:     documents,
	}
}

func TestDefinitions(t *testing.T) {
	tools := &Tools{}

	tests := []struct {
		name     string
		def      mcp.Tool
		props    []string
		required []string
	}{
		{"list_tasks", tools.ListTasksDefinition(), []string{"status", "limit"}, nil},
		{"world_model", tools.WorldModelDefinition(), nil, nil},
		{"synthesize", tools.SynthesizeDefinition(), nil, nil},
		{"ingest_transcript", tools.IngestDefinition(), []string{"text"}, []string{"text"}},
		{"answer_task", tools.AnswerDefinition(), []string{"id", "answer"}, []string{"id", "answer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.def.Name != tt.name {
				t.Fatalf("expected name %q, got %q", tt.name, tt.def.Name)
			}
			for _, p := range tt.props {
				if _, ok := tt.def.InputSchema.Properties[p]; !ok {
					t.Errorf("missing property %q", p)
				}
			}
			if len(tt.def.InputSchema.Required) != len(tt.required) {
				t.Fatalf("expected required %v, got %v", tt.required, tt.def.InputSchema.Required)
			}
		})
	}
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	f := setup(t, scriptedLLM{})

	result, err := f.tools.ListTasks(ctx, makeReq(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := resultText(t, result); text != "No tasks." {
		t.Fatalf("expected empty listing, got %q", text)
	}

	f.pipeline.InsertTask(models.Task{
		ID: "BN-1", AnalysisID: "an1", Title: "Book flights", Prompt: "Book flights to Bangalore",
		Mode: models.TaskModeAsk, Status: models.TaskStatusNeedsInput,
		PendingQuestion: "Which dates?", CreatedAt: 1,
	})
	f.pipeline.InsertTask(models.Task{
		ID: "AT-1", AnalysisID: "an2", Title: "Fix login bug", Prompt: "Fix it",
		Mode: models.TaskModeAuto, Status: models.TaskStatusUpcoming, CreatedAt: 2,
	})
	f.pipeline.Flush(ctx)

	result, err = f.tools.ListTasks(ctx, makeReq(map[string]any{"status": "needs_input"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "BN-1") || !strings.Contains(text, "Which dates?") {
		t.Fatalf("expected needs_input task with question, got %q", text)
	}
	if strings.Contains(text, "AT-1") {
		t.Fatalf("status filter not applied: %q", text)
	}

	result, _ = f.tools.ListTasks(ctx, makeReq(map[string]any{"status": "bogus"}))
	if !result.IsError {
		t.Fatal("expected invalid status to be an error result")
	}
}

func TestWorldModelAndSynthesize(t *testing.T) {
	ctx := context.Background()
	f := setup(t, scriptedLLM{
		"You maintain two living documents": "<WORLD_MODEL>\n## People\n- Priya runs design\n</WORLD_MODEL>\n<TODOS>\n- Call Priya\n</TODOS>",
	})

	result, err := f.tools.WorldModel(ctx, makeReq(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := resultText(t, result); strings.Count(text, "(empty)") != 2 {
		t.Fatalf("expected both documents empty, got %q", text)
	}

	result, _ = f.tools.Synthesize(ctx, makeReq(nil))
	if text := resultText(t, result); text != "Nothing pending." {
		t.Fatalf("expected nothing pending, got %q", text)
	}

	f.items.Insert(models.KnowledgeItem{
		ID: "k1", CreatedAt: 1, Content: "Priya runs design",
		Type: models.ItemTypeFact, Bucket: models.BucketPeople, Decision: models.RelevanceRelevant,
	})
	f.items.Flush(ctx)

	result, _ = f.tools.Synthesize(ctx, makeReq(nil))
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "Applied 1 of 1") {
		t.Fatalf("unexpected synthesis summary: %q", text)
	}

	result, _ = f.tools.WorldModel(ctx, makeReq(nil))
	text := resultText(t, result)
	if !strings.Contains(text, "Priya runs design") || !strings.Contains(text, "Call Priya") {
		t.Fatalf("expected synthesized documents, got %q", text)
	}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	f := setup(t, scriptedLLM{
		"You extract knowledge":        "relevant|plans|todo|MEDIUM|Water the plants on Sunday",
		"Clean up this speech-to-text": "CONTINUATION: no\nTEXT: Remind me to water the plants on Sunday.",
		"Analyze what the user said":   "PROJECT: none\nPEOPLE: none\nPRIORITY: MEDIUM\nTAGS: home\nSUMMARY: Plants\nTASK_TITLE: Water plants\nTASK_PROMPT: Remind the user to water the plants on Sunday",
		"Decide how an assistant":      "SKILL: general\nCERTAINTY: high\nNEEDS_INPUT: none",
	})

	result, _ := f.tools.Ingest(ctx, makeReq(map[string]any{"text": "  "}))
	if !result.IsError {
		t.Fatal("expected empty text to be rejected")
	}

	result, err := f.tools.Ingest(ctx, makeReq(map[string]any{"text": "uh remind me to water the plants sunday"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "Extracted 1 knowledge item") {
		t.Fatalf("expected one item, got %q", text)
	}
	if !strings.Contains(text, "Created 1 task") || !strings.Contains(text, "Water plants") {
		t.Fatalf("expected created task, got %q", text)
	}
}
