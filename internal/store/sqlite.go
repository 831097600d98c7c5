package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, applies the
// given schema, and configures WAL mode so readers never block the writer.
func Open(dbPath, schema string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db}, nil
}

const knowledgeSchema = `
CREATE TABLE IF NOT EXISTS knowledge_items (
  id TEXT PRIMARY KEY,
  chunk_index INTEGER NOT NULL,
  session_label TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  source_phrase TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL,
  item_type TEXT NOT NULL,
  bucket TEXT NOT NULL,
  priority TEXT NOT NULL DEFAULT '',
  decision TEXT NOT NULL,
  override TEXT,
  applied INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_knowledge_applied ON knowledge_items(applied);
CREATE INDEX IF NOT EXISTS idx_knowledge_chunk ON knowledge_items(chunk_index);
`

const pipelineSchema = `
CREATE TABLE IF NOT EXISTS cleaned_transcripts (
  id TEXT PRIMARY KEY,
  session_id TEXT,
  source_chunk_ids TEXT NOT NULL DEFAULT '[]',
  is_continuation INTEGER NOT NULL DEFAULT 0,
  chunk_count INTEGER NOT NULL DEFAULT 1,
  text TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  speaker TEXT,
  duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transcript_analyses (
  id TEXT PRIMARY KEY,
  transcript_id TEXT NOT NULL,
  priority TEXT NOT NULL DEFAULT '',
  project_name TEXT,
  project_id TEXT,
  people TEXT NOT NULL DEFAULT '[]',
  tags TEXT NOT NULL DEFAULT '[]',
  summary TEXT NOT NULL DEFAULT '',
  tasks TEXT NOT NULL DEFAULT '[]',
  created_at INTEGER NOT NULL,
  FOREIGN KEY (transcript_id) REFERENCES cleaned_transcripts(id)
);

CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  analysis_id TEXT NOT NULL,
  title TEXT NOT NULL,
  prompt TEXT NOT NULL,
  project_id TEXT,
  project_name TEXT,
  mode TEXT NOT NULL,
  status TEXT NOT NULL,
  skill_id TEXT,
  workflow_id TEXT,
  workflow_steps TEXT NOT NULL DEFAULT '[]',
  missing_connection TEXT,
  pending_question TEXT,
  attachments TEXT NOT NULL DEFAULT '[]',
  agent_session_id TEXT,
  created_at INTEGER NOT NULL,
  started_at INTEGER,
  completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);

CREATE TABLE IF NOT EXISTS execution_steps (
  task_id TEXT NOT NULL,
  idx INTEGER NOT NULL,
  description TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  output TEXT,
  PRIMARY KEY (task_id, idx),
  FOREIGN KEY (task_id) REFERENCES tasks(id)
);

CREATE TABLE IF NOT EXISTS task_counters (
  prefix TEXT PRIMARY KEY,
  value INTEGER NOT NULL
);
`

const projectSchema = `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE COLLATE NOCASE,
  path TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
`

// OpenKnowledge opens the knowledge item database.
func OpenKnowledge(path string) (*DB, error) { return Open(path, knowledgeSchema) }

// OpenPipeline opens the transcripts/analyses/tasks/steps database.
func OpenPipeline(path string) (*DB, error) { return Open(path, pipelineSchema) }

// OpenProjects opens the project registry database.
func OpenProjects(path string) (*DB, error) { return Open(path, projectSchema) }

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(data), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
