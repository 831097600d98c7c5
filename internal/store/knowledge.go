package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

// knowledgeColumns is the canonical column list for all SELECT queries.
// Order must match scanItem.
const knowledgeColumns = `id, chunk_index, session_label, created_at, source_phrase,
	content, item_type, bucket, priority, decision, override, applied`

// KnowledgeStore owns the knowledge_items table. Writes are fire-and-forget
// through the store's queue; reads block on the same queue.
type KnowledgeStore struct {
	db     *DB
	q      *Queue
	logger *slog.Logger
}

func NewKnowledgeStore(db *DB, logger *slog.Logger) *KnowledgeStore {
	return &KnowledgeStore{db: db, q: NewQueue(256), logger: logger}
}

// Close drains the queue and closes the database.
func (s *KnowledgeStore) Close() error {
	s.q.Close()
	return s.db.Close()
}

// Flush waits for all queued writes to land.
func (s *KnowledgeStore) Flush(ctx context.Context) error {
	return s.q.Flush(ctx)
}

func (s *KnowledgeStore) write(op string, fn func() error) error {
	return s.q.Go(func() {
		if err := fn(); err != nil {
			s.logger.Error("knowledge store write failed", "op", op, "error", err)
		}
	})
}

// Insert persists an item. A row with the same id is left untouched.
func (s *KnowledgeStore) Insert(item models.KnowledgeItem) error {
	return s.write("insert", func() error {
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO knowledge_items (
				id, chunk_index, session_label, created_at, source_phrase,
				content, item_type, bucket, priority, decision, override, applied
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			item.ID, item.ChunkIndex, item.SessionLabel, item.CreatedAt, item.SourcePhrase,
			item.Content, string(item.Type), string(item.Bucket), string(item.Priority),
			string(item.Decision), relevancePtr(item.Override), boolToInt(item.Applied),
		)
		if err != nil {
			return fmt.Errorf("insert knowledge item: %w", err)
		}
		return nil
	})
}

// SetOverride records (or clears, when r is nil) the user's decision.
func (s *KnowledgeStore) SetOverride(id string, r *models.Relevance) error {
	return s.write("set_override", func() error {
		_, err := s.db.Exec(`UPDATE knowledge_items SET override = ? WHERE id = ?`, relevancePtr(r), id)
		return err
	})
}

// SetBucket reassigns an item to another bucket.
func (s *KnowledgeStore) SetBucket(id string, b models.Bucket) error {
	return s.write("set_bucket", func() error {
		_, err := s.db.Exec(`UPDATE knowledge_items SET bucket = ? WHERE id = ?`, string(b), id)
		return err
	})
}

// MarkApplied retires the given items after a successful synthesis.
func (s *KnowledgeStore) MarkApplied(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ids = append([]string(nil), ids...)
	return s.write("mark_applied", func() error {
		placeholders, args := inClause(ids)
		_, err := s.db.Exec(
			fmt.Sprintf(`UPDATE knowledge_items SET applied = 1 WHERE id IN (%s)`, placeholders), args...)
		if err != nil {
			return fmt.Errorf("mark applied: %w", err)
		}
		return nil
	})
}

// Collapse merges a duplicate group: the kept row takes the canonical
// content and the dropped rows are deleted, in one transaction.
func (s *KnowledgeStore) Collapse(keepID, canonical string, dropIDs []string) error {
	dropIDs = append([]string(nil), dropIDs...)
	return s.write("collapse", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin collapse: %w", err)
		}
		defer tx.Rollback()

		if canonical != "" {
			if _, err := tx.Exec(`UPDATE knowledge_items SET content = ? WHERE id = ?`, canonical, keepID); err != nil {
				return fmt.Errorf("update kept item: %w", err)
			}
		}
		for _, id := range dropIDs {
			if id == keepID {
				continue
			}
			if _, err := tx.Exec(`DELETE FROM knowledge_items WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete dropped item: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Get fetches a single item by ID. Returns nil when absent.
func (s *KnowledgeStore) Get(ctx context.Context, id string) (*models.KnowledgeItem, error) {
	return query(ctx, s.q, func() (*models.KnowledgeItem, error) {
		it, err := scanItem(s.db.QueryRow(
			fmt.Sprintf(`SELECT %s FROM knowledge_items WHERE id = ?`, knowledgeColumns), id))
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get knowledge item: %w", err)
		}
		return it, nil
	})
}

// All returns every stored item ordered by creation.
func (s *KnowledgeStore) All(ctx context.Context) ([]models.KnowledgeItem, error) {
	return s.list(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_items ORDER BY created_at, chunk_index, id`)
}

// PendingAccepted returns items not yet applied whose effective state is relevant.
func (s *KnowledgeStore) PendingAccepted(ctx context.Context) ([]models.KnowledgeItem, error) {
	return s.list(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_items
		WHERE applied = 0 AND COALESCE(override, decision) = 'relevant'
		ORDER BY created_at, chunk_index, id`)
}

// Counts summarizes the table.
func (s *KnowledgeStore) Counts(ctx context.Context) (models.KnowledgeCounts, error) {
	c, err := query(ctx, s.q, func() (models.KnowledgeCounts, error) {
		var c models.KnowledgeCounts
		err := s.db.QueryRow(`
			SELECT COUNT(*),
			       COALESCE(SUM(CASE WHEN applied = 0 AND COALESCE(override, decision) = 'relevant' THEN 1 ELSE 0 END), 0),
			       COALESCE(SUM(applied), 0)
			FROM knowledge_items
		`).Scan(&c.Total, &c.PendingAccepted, &c.Applied)
		return c, err
	})
	if err != nil {
		return c, fmt.Errorf("count knowledge items: %w", err)
	}
	return c, nil
}

func (s *KnowledgeStore) list(ctx context.Context, stmt string, args ...any) ([]models.KnowledgeItem, error) {
	return query(ctx, s.q, func() ([]models.KnowledgeItem, error) {
		rows, err := s.db.Query(stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("query knowledge items: %w", err)
		}
		defer rows.Close()
		var items []models.KnowledgeItem
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return nil, fmt.Errorf("scan knowledge item: %w", err)
			}
			items = append(items, *it)
		}
		return items, rows.Err()
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.KnowledgeItem, error) {
	var it models.KnowledgeItem
	var itemType, bucket, priority, decision string
	var override sql.NullString
	var applied int
	if err := row.Scan(&it.ID, &it.ChunkIndex, &it.SessionLabel, &it.CreatedAt, &it.SourcePhrase,
		&it.Content, &itemType, &bucket, &priority, &decision, &override, &applied); err != nil {
		return nil, err
	}
	it.Type = models.ItemType(itemType)
	it.Bucket = models.Bucket(bucket)
	it.Priority = models.Priority(priority)
	it.Decision = models.Relevance(decision)
	if override.Valid {
		r := models.Relevance(override.String)
		it.Override = &r
	}
	it.Applied = applied != 0
	return &it, nil
}

func relevancePtr(r *models.Relevance) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
