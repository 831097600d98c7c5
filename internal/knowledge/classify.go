package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

// itemNamespace seeds deterministic knowledge item ids so that replaying
// the same model response maps onto the same rows.
var itemNamespace = uuid.MustParse("6f1f5d0e-8d1a-4b7e-9a57-3c1b0f8e2a41")

const classifyMaxTokens = 1024

// Notifier announces accepted knowledge. Calls must not block.
type Notifier interface {
	Notify(text string)
}

// ChunkInput is one transcribed chunk handed to the classifier.
type ChunkInput struct {
	Text         string
	ChunkIndex   int
	SessionLabel string
	PreviousTail string
}

// Classifier is Pass 1: it splits one transcript chunk into typed,
// bucketed knowledge items and persists each one immediately.
type Classifier struct {
	llm      llm.Gateway
	items    *store.KnowledgeStore
	notifier Notifier
	diag     *Diagnostics
	logger   *slog.Logger
	now      func() time.Time
}

func NewClassifier(gw llm.Gateway, items *store.KnowledgeStore, notifier Notifier, diag *Diagnostics, logger *slog.Logger) *Classifier {
	return &Classifier{
		llm:      gw,
		items:    items,
		notifier: notifier,
		diag:     diag,
		logger:   logger,
		now:      time.Now,
	}
}

const classifyPrompt = `You extract knowledge from a live transcript of things the user said out loud.

For every distinct idea, output exactly one line:
relevance|bucket|type|priority|content

- relevance: relevant, nonrelevant, or uncertain
- bucket: projects, people, plans, preferences, decisions, or other
- type: fact or todo
- priority: HIGH, MEDIUM, LOW, or - for none
- content: one short normalized sentence about the user

Output only these lines. No headers, no numbering, no commentary.
Chatter, filler, and media playing in the background are nonrelevant.
%s
Session %s, chunk %d transcript:
%s`

func buildClassifyPrompt(in ChunkInput) string {
	continuity := ""
	if tail := strings.TrimSpace(in.PreviousTail); tail != "" {
		continuity = fmt.Sprintf("\nThe previous chunk ended with: %q\nIt may continue mid-sentence into this one.\n", tail)
	}
	return fmt.Sprintf(classifyPrompt, continuity, in.SessionLabel, in.ChunkIndex, in.Text)
}

// Classify runs one inference call. On failure it returns an empty slice
// and persists nothing.
func (c *Classifier) Classify(ctx context.Context, in ChunkInput) []models.KnowledgeItem {
	if strings.TrimSpace(in.Text) == "" {
		return []models.KnowledgeItem{}
	}

	resp, err := c.llm.Generate(ctx, buildClassifyPrompt(in), classifyMaxTokens)
	if err != nil {
		c.logger.Warn("classification failed", "chunk", in.ChunkIndex, "error", err)
		return []models.KnowledgeItem{}
	}

	lines := ParseClassification(resp, c.diag)
	items := make([]models.KnowledgeItem, 0, len(lines))
	notified := false
	createdAt := c.now().Unix()

	for i, line := range lines {
		item := models.KnowledgeItem{
			ID:           ItemID(in.SessionLabel, in.ChunkIndex, i, line.Content),
			ChunkIndex:   in.ChunkIndex,
			SessionLabel: in.SessionLabel,
			CreatedAt:    createdAt,
			SourcePhrase: sourcePhrase(line),
			Content:      line.Content,
			Type:         line.Type,
			Bucket:       line.Bucket,
			Priority:     line.Priority,
			Decision:     line.Relevance,
		}
		if err := c.items.Insert(item); err != nil {
			c.logger.Error("failed to persist knowledge item", "item_id", item.ID, "error", err)
			continue
		}
		items = append(items, item)

		if !notified && item.Decision == models.RelevanceRelevant && c.notifier != nil {
			c.notifier.Notify("Noted. " + item.Content)
			notified = true
		}
	}

	c.logger.Info("chunk classified", "chunk", in.ChunkIndex, "session", in.SessionLabel, "count", len(items))
	return items
}

// ItemID derives a stable id from an item's position and content.
func ItemID(session string, chunkIndex, line int, content string) string {
	key := fmt.Sprintf("%s|%d|%d|%s", session, chunkIndex, line, content)
	return uuid.NewSHA1(itemNamespace, []byte(key)).String()
}

func sourcePhrase(line ClassifiedLine) string {
	if line.SourcePhrase != "" {
		return line.SourcePhrase
	}
	return truncate(line.Content, 60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
