package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/docs"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

const (
	tagWorldModel = "WORLD_MODEL"
	tagTodos      = "TODOS"

	synthesisMaxTokens = 4096
)

// ErrNoCleaner is returned by Cleanup when no cleanup pass is configured.
var ErrNoCleaner = errors.New("cleanup not configured")

// SynthesisResult reports what one synthesis run changed.
type SynthesisResult struct {
	Pending           int  `json:"pending"`
	Applied           int  `json:"applied"`
	WorldModelUpdated bool `json:"worldModelUpdated"`
	TodosUpdated      bool `json:"todosUpdated"`
	CleanupRan        bool `json:"cleanupRan"`
}

// Synthesizer is Pass 2: it folds every pending accepted item into the
// two canonical documents with a single inference call.
type Synthesizer struct {
	llm     llm.Gateway
	items   *store.KnowledgeStore
	docs    *docs.Store
	cleaner *Cleaner
	diag    *Diagnostics
	logger  *slog.Logger

	mu sync.Mutex
}

func NewSynthesizer(gw llm.Gateway, items *store.KnowledgeStore, documents *docs.Store, cleaner *Cleaner, diag *Diagnostics, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		llm:     gw,
		items:   items,
		docs:    documents,
		cleaner: cleaner,
		diag:    diag,
		logger:  logger,
	}
}

// Synthesize runs one synthesis, waiting for any run in progress.
func (s *Synthesizer) Synthesize(ctx context.Context) (SynthesisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx)
}

// Cleanup runs the cleanup pass on its own. It shares the synthesis lock so
// a rewrite never works from documents that a synthesis is about to change.
func (s *Synthesizer) Cleanup(ctx context.Context) (CleanupResult, error) {
	if s.cleaner == nil {
		return CleanupResult{}, ErrNoCleaner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleaner.Run(ctx)
}

// TrySynthesize runs a synthesis unless one is already in progress.
func (s *Synthesizer) TrySynthesize(ctx context.Context) (SynthesisResult, bool, error) {
	if !s.mu.TryLock() {
		return SynthesisResult{}, false, nil
	}
	defer s.mu.Unlock()
	res, err := s.run(ctx)
	return res, true, err
}

func (s *Synthesizer) run(ctx context.Context) (SynthesisResult, error) {
	var res SynthesisResult

	pending, err := s.items.PendingAccepted(ctx)
	if err != nil {
		return res, fmt.Errorf("load pending items: %w", err)
	}
	res.Pending = len(pending)
	if len(pending) == 0 {
		return res, nil
	}

	current, err := s.docs.Read()
	if err != nil {
		return res, fmt.Errorf("read documents: %w", err)
	}

	resp, err := s.llm.Generate(ctx, buildSynthesisPrompt(current, pending), synthesisMaxTokens)
	if err != nil {
		s.logger.Warn("synthesis inference failed", "pending", len(pending), "error", err)
		return res, fmt.Errorf("synthesis inference: %w", err)
	}

	res.WorldModelUpdated = s.writeBlock(resp, tagWorldModel, docs.WorldModel)
	res.TodosUpdated = s.writeBlock(resp, tagTodos, docs.Todos)

	if !res.WorldModelUpdated && !res.TodosUpdated {
		s.logger.Warn("synthesis produced no usable documents, items left pending", "pending", len(pending))
		return res, nil
	}

	ids := make([]string, len(pending))
	for i, it := range pending {
		ids[i] = it.ID
	}
	if err := s.items.MarkApplied(ids); err != nil {
		return res, fmt.Errorf("mark applied: %w", err)
	}
	res.Applied = len(ids)
	s.logger.Info("synthesis applied",
		"count", len(ids),
		"world_model", res.WorldModelUpdated,
		"todos", res.TodosUpdated,
	)

	if s.cleaner != nil {
		if _, err := s.cleaner.Run(ctx); err != nil {
			s.logger.Warn("post-synthesis cleanup incomplete", "error", err)
		}
		res.CleanupRan = true
	}
	return res, nil
}

// writeBlock extracts one tagged block and writes it when non-empty.
func (s *Synthesizer) writeBlock(resp, tag string, kind docs.Kind) bool {
	return writeTagged(resp, tag, kind, s.docs, s.diag, s.logger)
}

func writeTagged(resp, tag string, kind docs.Kind, ds *docs.Store, diag *Diagnostics, logger *slog.Logger) bool {
	body, ok := ExtractTag(resp, tag)
	if !ok {
		diag.Add(DropMissingTag)
		logger.Warn("response missing tag, document unchanged", "tag", tag)
		return false
	}
	if body == "" {
		logger.Warn("response tag empty, document unchanged", "tag", tag)
		return false
	}
	if err := ds.Write(kind, body+"\n"); err != nil {
		logger.Error("failed to write document", "kind", kind, "error", err)
		return false
	}
	return true
}

const synthesisPrompt = `You maintain two living documents about the user.

Current world model:
<CURRENT_WORLD_MODEL>
%s
</CURRENT_WORLD_MODEL>

Current todo list:
<CURRENT_TODOS>
%s
</CURRENT_TODOS>

New facts, grouped by bucket:
%s
New todos:
%s
Merge the new information into both documents. Keep everything still true,
update anything the new facts contradict, and keep markdown sections.
Return the complete rewritten documents exactly as:
<WORLD_MODEL>
...
</WORLD_MODEL>
<TODOS>
...
</TODOS>`

func buildSynthesisPrompt(current docs.Documents, pending []models.KnowledgeItem) string {
	facts := make(map[models.Bucket][]models.KnowledgeItem)
	var todos []models.KnowledgeItem
	for _, it := range pending {
		if it.Type == models.ItemTypeTodo {
			todos = append(todos, it)
			continue
		}
		facts[it.Bucket] = append(facts[it.Bucket], it)
	}

	var fb strings.Builder
	for _, b := range models.Buckets {
		group := facts[b]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&fb, "## %s\n", b)
		for _, it := range group {
			fmt.Fprintf(&fb, "- %s\n", it.Content)
		}
	}
	if fb.Len() == 0 {
		fb.WriteString("(none)\n")
	}

	var tb strings.Builder
	for _, it := range todos {
		if it.Priority != models.PriorityNone {
			fmt.Fprintf(&tb, "- [%s] %s\n", it.Priority, it.Content)
		} else {
			fmt.Fprintf(&tb, "- %s\n", it.Content)
		}
	}
	if tb.Len() == 0 {
		tb.WriteString("(none)\n")
	}

	return fmt.Sprintf(synthesisPrompt, orNone(current.WorldModel), orNone(current.Todos), fb.String(), tb.String())
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty)"
	}
	return strings.TrimSpace(s)
}
