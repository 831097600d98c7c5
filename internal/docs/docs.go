package docs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Kind names one of the two canonical documents.
type Kind string

const (
	WorldModel Kind = "world_model"
	Todos      Kind = "todos"
)

// Documents is a snapshot of both canonical documents.
type Documents struct {
	WorldModel string `json:"worldModel"`
	Todos      string `json:"todos"`
}

// Store reads and replaces the canonical documents. The files are plain
// markdown and may be edited by hand between pipeline runs.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(k Kind) string {
	return filepath.Join(s.dir, string(k)+".md")
}

// Read returns both documents. A missing file reads as empty.
func (s *Store) Read() (Documents, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wm, err := s.readFile(WorldModel)
	if err != nil {
		return Documents{}, err
	}
	td, err := s.readFile(Todos)
	if err != nil {
		return Documents{}, err
	}
	return Documents{WorldModel: wm, Todos: td}, nil
}

func (s *Store) readFile(k Kind) (string, error) {
	data, err := os.ReadFile(s.path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", k, err)
	}
	return string(data), nil
}

// Write replaces one document wholesale via temp file and rename.
func (s *Store) Write(k Kind, text string) error {
	if k != WorldModel && k != Todos {
		return fmt.Errorf("unknown document kind %q", k)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create docs directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+string(k)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", k, err)
	}
	if err := os.Rename(tmp.Name(), s.path(k)); err != nil {
		return fmt.Errorf("replace %s: %w", k, err)
	}
	return nil
}
