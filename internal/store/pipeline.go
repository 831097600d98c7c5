package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

const taskColumns = `id, analysis_id, title, prompt, project_id, project_name, mode, status,
	skill_id, workflow_id, workflow_steps, missing_connection, pending_question,
	attachments, agent_session_id, created_at, started_at, completed_at`

// PipelineStore owns cleaned transcripts, analyses, tasks, execution steps
// and the per-prefix task counters.
type PipelineStore struct {
	db     *DB
	q      *Queue
	logger *slog.Logger
}

func NewPipelineStore(db *DB, logger *slog.Logger) *PipelineStore {
	return &PipelineStore{db: db, q: NewQueue(256), logger: logger}
}

// Close drains the queue and closes the database.
func (s *PipelineStore) Close() error {
	s.q.Close()
	return s.db.Close()
}

// Flush waits for all queued writes to land.
func (s *PipelineStore) Flush(ctx context.Context) error {
	return s.q.Flush(ctx)
}

func (s *PipelineStore) write(op string, fn func() error) error {
	return s.q.Go(func() {
		if err := fn(); err != nil {
			s.logger.Error("pipeline store write failed", "op", op, "error", err)
		}
	})
}

// InsertTranscript persists a cleaned transcript. Rows are immutable.
func (s *PipelineStore) InsertTranscript(t models.CleanedTranscript) error {
	return s.write("insert_transcript", func() error {
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO cleaned_transcripts
				(id, session_id, source_chunk_ids, is_continuation, chunk_count, text, created_at, speaker, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, nullableString(t.SessionID), encodeList(t.SourceChunkIDs), boolToInt(t.IsContinuation),
			t.ChunkCount, t.Text, t.CreatedAt, nullableString(t.Speaker), t.DurationMs)
		return err
	})
}

// InsertAnalysis persists a transcript analysis. Rows are immutable.
func (s *PipelineStore) InsertAnalysis(a models.TranscriptAnalysis) error {
	return s.write("insert_analysis", func() error {
		tasks, err := encodeJSON(a.Tasks)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(`
			INSERT OR IGNORE INTO transcript_analyses
				(id, transcript_id, priority, project_name, project_id, people, tags, summary, tasks, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.TranscriptID, string(a.Priority), nullableString(a.ProjectName), nullableString(a.ProjectID),
			encodeList(a.People), encodeList(a.Tags), a.Summary, tasks, a.CreatedAt)
		return err
	})
}

// InsertTask persists a new task.
func (s *PipelineStore) InsertTask(t models.Task) error {
	return s.write("insert_task", func() error {
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO tasks (
				id, analysis_id, title, prompt, project_id, project_name, mode, status,
				skill_id, workflow_id, workflow_steps, missing_connection, pending_question,
				attachments, agent_session_id, created_at, started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.AnalysisID, t.Title, t.Prompt, nullableString(t.ProjectID), nullableString(t.ProjectName),
			string(t.Mode), string(t.Status), nullableString(t.SkillID), nullableString(t.WorkflowID),
			encodeList(t.WorkflowSteps), nullableString(t.MissingConnection), nullableString(t.PendingQuestion),
			encodeList(t.Attachments), nullableString(t.AgentSessionID), t.CreatedAt, t.StartedAt, t.CompletedAt)
		return err
	})
}

// TaskUpdate holds partial task fields. Nil pointers are left untouched.
type TaskUpdate struct {
	Status          *models.TaskStatus
	Mode            *models.TaskMode
	Prompt          *string
	PendingQuestion *string
	AgentSessionID  *string
	StartedAt       *int64
	CompletedAt     *int64
}

// UpdateTask transitions a task. Tasks are never deleted.
func (s *PipelineStore) UpdateTask(id string, u TaskUpdate) error {
	var sets []string
	var args []any
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.Mode != nil {
		sets = append(sets, "mode = ?")
		args = append(args, string(*u.Mode))
	}
	if u.Prompt != nil {
		sets = append(sets, "prompt = ?")
		args = append(args, *u.Prompt)
	}
	if u.PendingQuestion != nil {
		sets = append(sets, "pending_question = ?")
		args = append(args, nullableString(*u.PendingQuestion))
	}
	if u.AgentSessionID != nil {
		sets = append(sets, "agent_session_id = ?")
		args = append(args, nullableString(*u.AgentSessionID))
	}
	if u.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *u.StartedAt)
	}
	if u.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *u.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	return s.write("update_task", func() error {
		_, err := s.db.Exec(stmt, args...)
		return err
	})
}

// AppendStep adds an execution step. A step index is written once.
func (s *PipelineStore) AppendStep(step models.ExecutionStep) error {
	return s.write("append_step", func() error {
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO execution_steps (task_id, idx, description, status, created_at, output)
			VALUES (?, ?, ?, ?, ?, ?)
		`, step.TaskID, step.Index, step.Description, step.Status, step.CreatedAt, nullableString(step.Output))
		return err
	})
}

// NextTaskID allocates the next sequence number for prefix and returns the
// formatted id. The read-increment-write runs inside the store's queue.
func (s *PipelineStore) NextTaskID(ctx context.Context, prefix string) (string, error) {
	n, err := query(ctx, s.q, func() (int64, error) {
		var n int64
		err := s.db.QueryRow(`
			INSERT INTO task_counters (prefix, value) VALUES (?, 1)
			ON CONFLICT(prefix) DO UPDATE SET value = value + 1
			RETURNING value
		`, prefix).Scan(&n)
		return n, err
	})
	if err != nil {
		return "", fmt.Errorf("allocate task id: %w", err)
	}
	return fmt.Sprintf("%s-%d", prefix, n), nil
}

// Task fetches a task by ID. Returns nil when absent.
func (s *PipelineStore) Task(ctx context.Context, id string) (*models.Task, error) {
	return query(ctx, s.q, func() (*models.Task, error) {
		t, err := scanTask(s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM tasks WHERE id = ?`, taskColumns), id))
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get task: %w", err)
		}
		return t, nil
	})
}

// Tasks lists tasks newest first.
func (s *PipelineStore) Tasks(ctx context.Context, f models.TaskFilter) ([]models.Task, error) {
	where := []string{"1 = 1"}
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, string(f.Mode))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	stmt := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
		taskColumns, strings.Join(where, " AND "))

	return query(ctx, s.q, func() ([]models.Task, error) {
		rows, err := s.db.Query(stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		defer rows.Close()
		var tasks []models.Task
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return nil, fmt.Errorf("scan task: %w", err)
			}
			tasks = append(tasks, *t)
		}
		return tasks, rows.Err()
	})
}

// Steps returns a task's execution log in index order.
func (s *PipelineStore) Steps(ctx context.Context, taskID string) ([]models.ExecutionStep, error) {
	return query(ctx, s.q, func() ([]models.ExecutionStep, error) {
		rows, err := s.db.Query(`
			SELECT task_id, idx, description, status, created_at, output
			FROM execution_steps WHERE task_id = ? ORDER BY idx
		`, taskID)
		if err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		defer rows.Close()
		var steps []models.ExecutionStep
		for rows.Next() {
			var st models.ExecutionStep
			var output sql.NullString
			if err := rows.Scan(&st.TaskID, &st.Index, &st.Description, &st.Status, &st.CreatedAt, &output); err != nil {
				return nil, fmt.Errorf("scan step: %w", err)
			}
			st.Output = output.String
			steps = append(steps, st)
		}
		return steps, rows.Err()
	})
}

// Transcripts returns the most recent cleaned transcripts.
func (s *PipelineStore) Transcripts(ctx context.Context, limit int) ([]models.CleanedTranscript, error) {
	if limit <= 0 {
		limit = 50
	}
	return query(ctx, s.q, func() ([]models.CleanedTranscript, error) {
		rows, err := s.db.Query(`
			SELECT id, session_id, source_chunk_ids, is_continuation, chunk_count, text, created_at, speaker, duration_ms
			FROM cleaned_transcripts ORDER BY created_at DESC, id DESC LIMIT ?
		`, limit)
		if err != nil {
			return nil, fmt.Errorf("list transcripts: %w", err)
		}
		defer rows.Close()
		var out []models.CleanedTranscript
		for rows.Next() {
			var t models.CleanedTranscript
			var sessionID, speaker sql.NullString
			var chunkIDs string
			var cont int
			if err := rows.Scan(&t.ID, &sessionID, &chunkIDs, &cont, &t.ChunkCount, &t.Text,
				&t.CreatedAt, &speaker, &t.DurationMs); err != nil {
				return nil, fmt.Errorf("scan transcript: %w", err)
			}
			t.SessionID = sessionID.String
			t.Speaker = speaker.String
			t.SourceChunkIDs = decodeList(chunkIDs)
			t.IsContinuation = cont != 0
			out = append(out, t)
		}
		return out, rows.Err()
	})
}

// Analyses returns the most recent transcript analyses.
func (s *PipelineStore) Analyses(ctx context.Context, limit int) ([]models.TranscriptAnalysis, error) {
	if limit <= 0 {
		limit = 50
	}
	return query(ctx, s.q, func() ([]models.TranscriptAnalysis, error) {
		rows, err := s.db.Query(`
			SELECT id, transcript_id, priority, project_name, project_id, people, tags, summary, tasks, created_at
			FROM transcript_analyses ORDER BY created_at DESC, id DESC LIMIT ?
		`, limit)
		if err != nil {
			return nil, fmt.Errorf("list analyses: %w", err)
		}
		defer rows.Close()
		var out []models.TranscriptAnalysis
		for rows.Next() {
			var a models.TranscriptAnalysis
			var priority, people, tags, tasks string
			var projectName, projectID sql.NullString
			if err := rows.Scan(&a.ID, &a.TranscriptID, &priority, &projectName, &projectID,
				&people, &tags, &a.Summary, &tasks, &a.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan analysis: %w", err)
			}
			a.Priority = models.Priority(priority)
			a.ProjectName = projectName.String
			a.ProjectID = projectID.String
			a.People = decodeList(people)
			a.Tags = decodeList(tags)
			a.Tasks = []models.TaskDescription{}
			_ = decodeJSON(tasks, &a.Tasks)
			out = append(out, a)
		}
		return out, rows.Err()
	})
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var projectID, projectName, skillID, workflowID, missing, question, sessionID sql.NullString
	var mode, status, steps, attachments string
	var startedAt, completedAt sql.NullInt64
	if err := row.Scan(&t.ID, &t.AnalysisID, &t.Title, &t.Prompt, &projectID, &projectName, &mode, &status,
		&skillID, &workflowID, &steps, &missing, &question, &attachments, &sessionID,
		&t.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	t.ProjectID = projectID.String
	t.ProjectName = projectName.String
	t.Mode = models.TaskMode(mode)
	t.Status = models.TaskStatus(status)
	t.SkillID = skillID.String
	t.WorkflowID = workflowID.String
	t.WorkflowSteps = decodeList(steps)
	t.MissingConnection = missing.String
	t.PendingQuestion = question.String
	t.Attachments = decodeList(attachments)
	t.AgentSessionID = sessionID.String
	if startedAt.Valid {
		t.StartedAt = &startedAt.Int64
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Int64
	}
	return &t, nil
}
