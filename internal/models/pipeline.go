package models

// CleanedTranscript is one merged, denoised unit of speech.
type CleanedTranscript struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionId,omitempty"`
	SourceChunkIDs []string `json:"sourceChunkIds"`
	IsContinuation bool     `json:"isContinuation"`
	ChunkCount     int      `json:"chunkCount"`
	Text           string   `json:"text"`
	CreatedAt      int64    `json:"createdAt"`
	Speaker        string   `json:"speaker,omitempty"`
	DurationMs     int64    `json:"durationMs"`
}

// TaskDescription is a (title, prompt) pair proposed by transcript analysis.
type TaskDescription struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

// TranscriptAnalysis is one semantic reading of a cleaned transcript.
type TranscriptAnalysis struct {
	ID           string            `json:"id"`
	TranscriptID string            `json:"transcriptId"`
	Priority     Priority          `json:"priority,omitempty"`
	ProjectName  string            `json:"projectName,omitempty"`
	ProjectID    string            `json:"projectId,omitempty"`
	People       []string          `json:"people"`
	Tags         []string          `json:"tags"`
	Summary      string            `json:"summary"`
	Tasks        []TaskDescription `json:"tasks"`
	CreatedAt    int64             `json:"createdAt"`
}

// TaskMode is the execution strategy for a task.
type TaskMode string

const (
	TaskModeAuto TaskMode = "auto"
	TaskModeAsk  TaskMode = "ask"
	TaskModeUser TaskMode = "user"
)

func (m TaskMode) IsValid() bool {
	return m == TaskModeAuto || m == TaskModeAsk || m == TaskModeUser
}

// TaskStatus is the lifecycle state of a pipeline task.
type TaskStatus string

const (
	TaskStatusUpcoming        TaskStatus = "upcoming"
	TaskStatusPendingApproval TaskStatus = "pending_approval"
	TaskStatusNeedsInput      TaskStatus = "needs_input"
	TaskStatusOngoing         TaskStatus = "ongoing"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFiltered        TaskStatus = "filtered"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusUpcoming, TaskStatusPendingApproval, TaskStatusNeedsInput,
		TaskStatusOngoing, TaskStatusCompleted, TaskStatusFiltered:
		return true
	}
	return false
}

// Certainty is the planner's confidence that a task can run unattended.
type Certainty string

const (
	CertaintyHigh   Certainty = "high"
	CertaintyMedium Certainty = "medium"
	CertaintyLow    Certainty = "low"
)

// Task is a persisted, mode-tagged unit of work derived from an analysis.
type Task struct {
	ID                string     `json:"id"`
	AnalysisID        string     `json:"analysisId"`
	Title             string     `json:"title"`
	Prompt            string     `json:"prompt"`
	ProjectID         string     `json:"projectId,omitempty"`
	ProjectName       string     `json:"projectName,omitempty"`
	Mode              TaskMode   `json:"mode"`
	Status            TaskStatus `json:"status"`
	SkillID           string     `json:"skillId,omitempty"`
	WorkflowID        string     `json:"workflowId,omitempty"`
	WorkflowSteps     []string   `json:"workflowSteps"`
	MissingConnection string     `json:"missingConnection,omitempty"`
	PendingQuestion   string     `json:"pendingQuestion,omitempty"`
	Attachments       []string   `json:"attachments"`
	AgentSessionID    string     `json:"agentSessionId,omitempty"`
	CreatedAt         int64      `json:"createdAt"`
	StartedAt         *int64     `json:"startedAt,omitempty"`
	CompletedAt       *int64     `json:"completedAt,omitempty"`
}

// ExecutionStep is one append-only log entry under a task.
type ExecutionStep struct {
	TaskID      string `json:"taskId"`
	Index       int    `json:"index"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	Output      string `json:"output,omitempty"`
}

// TaskFilter narrows task listings. Zero values match everything.
type TaskFilter struct {
	Status TaskStatus
	Mode   TaskMode
	Limit  int
}

// Project is a known project the pipeline can bind tasks to.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	CreatedAt int64  `json:"createdAt"`
}
