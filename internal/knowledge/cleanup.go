package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/docs"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

const (
	rewriteMaxTokens  = 4096
	collapseMaxTokens = 2048
)

// CleanupResult reports what one cleanup run changed.
type CleanupResult struct {
	WorldModelUpdated bool `json:"worldModelUpdated"`
	TodosUpdated      bool `json:"todosUpdated"`
	Groups            int  `json:"groups"`
	Dropped           int  `json:"dropped"`
}

// Cleaner is Pass 3. It rewrites the canonical documents and collapses
// near-duplicate knowledge items, running both inference calls at once.
type Cleaner struct {
	llm    llm.Gateway
	items  *store.KnowledgeStore
	docs   *docs.Store
	diag   *Diagnostics
	logger *slog.Logger
	now    func() time.Time
}

func NewCleaner(gw llm.Gateway, items *store.KnowledgeStore, documents *docs.Store, diag *Diagnostics, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		llm:    gw,
		items:  items,
		docs:   documents,
		diag:   diag,
		logger: logger,
		now:    time.Now,
	}
}

// Run awaits both halves. A failure in one half never cancels the other.
func (c *Cleaner) Run(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	var rewriteErr, collapseErr error

	var g errgroup.Group
	g.Go(func() error {
		res.WorldModelUpdated, res.TodosUpdated, rewriteErr = c.rewrite(ctx)
		if rewriteErr != nil {
			c.logger.Warn("document rewrite failed", "error", rewriteErr)
		}
		return nil
	})
	g.Go(func() error {
		res.Groups, res.Dropped, collapseErr = c.collapse(ctx)
		if collapseErr != nil {
			c.logger.Warn("item collapse failed", "error", collapseErr)
		}
		return nil
	})
	_ = g.Wait()

	c.logger.Info("cleanup finished",
		"world_model", res.WorldModelUpdated,
		"todos", res.TodosUpdated,
		"groups", res.Groups,
		"dropped", res.Dropped,
	)
	return res, errors.Join(rewriteErr, collapseErr)
}

const rewritePrompt = `Today is %s. You are cleaning up two living documents about the user.

World model:
<CURRENT_WORLD_MODEL>
%s
</CURRENT_WORLD_MODEL>

Todo list:
<CURRENT_TODOS>
%s
</CURRENT_TODOS>

Rewrite both documents: remove duplicates, merge overlapping statements,
group content under clear markdown sections, and drop todos that are
clearly done or past. If the world model describes something planned but
not yet built, add a todo for the gap.
Return the complete rewritten documents exactly as:
<WORLD_MODEL>
...
</WORLD_MODEL>
<TODOS>
...
</TODOS>`

func (c *Cleaner) rewrite(ctx context.Context) (bool, bool, error) {
	current, err := c.docs.Read()
	if err != nil {
		return false, false, fmt.Errorf("read documents: %w", err)
	}
	if strings.TrimSpace(current.WorldModel) == "" && strings.TrimSpace(current.Todos) == "" {
		return false, false, nil
	}

	prompt := fmt.Sprintf(rewritePrompt, c.now().Format("2006-01-02"), orNone(current.WorldModel), orNone(current.Todos))
	resp, err := c.llm.Generate(ctx, prompt, rewriteMaxTokens)
	if err != nil {
		return false, false, fmt.Errorf("rewrite inference: %w", err)
	}

	wm := writeTagged(resp, tagWorldModel, docs.WorldModel, c.docs, c.diag, c.logger)
	td := writeTagged(resp, tagTodos, docs.Todos, c.docs, c.diag, c.logger)
	return wm, td, nil
}

const collapsePrompt = `Below is every stored knowledge item as: id | bucket | type | content

%s
Find groups of items that say the same thing. For each group output one line:
canonical text | keep-id | drop-id,drop-id

Use only ids from the list. Output nothing for items without duplicates.
No headers, no commentary.`

func (c *Cleaner) collapse(ctx context.Context) (int, int, error) {
	all, err := c.items.All(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load items: %w", err)
	}
	if len(all) < 2 {
		return 0, 0, nil
	}

	resp, err := c.llm.Generate(ctx, buildCollapsePrompt(all), collapseMaxTokens)
	if err != nil {
		return 0, 0, fmt.Errorf("collapse inference: %w", err)
	}

	known := make(map[string]bool, len(all))
	for _, it := range all {
		known[it.ID] = true
	}

	groups := ParseCollapse(resp, known, c.diag)
	dropped := 0
	for _, g := range groups {
		if err := c.items.Collapse(g.KeepID, g.Canonical, g.DropIDs); err != nil {
			return len(groups), dropped, fmt.Errorf("collapse group: %w", err)
		}
		dropped += len(g.DropIDs)
	}
	if err := c.items.Flush(ctx); err != nil {
		return len(groups), dropped, fmt.Errorf("flush collapse: %w", err)
	}
	return len(groups), dropped, nil
}

func buildCollapsePrompt(items []models.KnowledgeItem) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%s | %s | %s | %s\n", it.ID, it.Bucket, it.Type, it.Content)
	}
	return fmt.Sprintf(collapsePrompt, b.String())
}
