package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

// ProjectStore owns the project registry.
type ProjectStore struct {
	db     *DB
	q      *Queue
	logger *slog.Logger
}

func NewProjectStore(db *DB, logger *slog.Logger) *ProjectStore {
	return &ProjectStore{db: db, q: NewQueue(64), logger: logger}
}

// Close drains the queue and closes the database.
func (s *ProjectStore) Close() error {
	s.q.Close()
	return s.db.Close()
}

// ProjectID computes the deterministic ID for a project name.
func ProjectID(name string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return fmt.Sprintf("%x", h[:8])
}

// Upsert registers a project or updates its path. Returns the project ID.
func (s *ProjectStore) Upsert(ctx context.Context, name, path string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("project name must not be empty")
	}
	id := ProjectID(name)
	err := s.q.Do(ctx, func() error {
		_, err := s.db.Exec(`
			INSERT INTO projects (id, name, path, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET path = excluded.path
		`, id, name, path, time.Now().Unix())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upsert project: %w", err)
	}
	return id, nil
}

// Get returns a project by ID, or nil when absent.
func (s *ProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	return query(ctx, s.q, func() (*models.Project, error) {
		var proj models.Project
		err := s.db.QueryRow(`SELECT id, name, path, created_at FROM projects WHERE id = ?`, id).
			Scan(&proj.ID, &proj.Name, &proj.Path, &proj.CreatedAt)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get project: %w", err)
		}
		return &proj, nil
	})
}

// List returns all projects ordered by name.
func (s *ProjectStore) List(ctx context.Context) ([]models.Project, error) {
	return query(ctx, s.q, func() ([]models.Project, error) {
		rows, err := s.db.Query(`SELECT id, name, path, created_at FROM projects ORDER BY name`)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		defer rows.Close()
		var projects []models.Project
		for rows.Next() {
			var p models.Project
			if err := rows.Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan project: %w", err)
			}
			projects = append(projects, p)
		}
		return projects, rows.Err()
	})
}

// Resolve matches a free-form name against known projects: exact
// case-insensitive match first, then substring either way. Returns nil when
// nothing matches.
func Resolve(projects []models.Project, name string) *models.Project {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range projects {
		if strings.ToLower(projects[i].Name) == needle {
			return &projects[i]
		}
	}
	for i := range projects {
		candidate := strings.ToLower(projects[i].Name)
		if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
			return &projects[i]
		}
	}
	return nil
}
