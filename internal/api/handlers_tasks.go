package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/executor"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

type TaskHandler struct {
	svc    Services
	logger *slog.Logger
}

func NewTaskHandler(svc Services, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, logger: logger}
}

type taskResponse struct {
	*models.Task
	Steps   []models.ExecutionStep `json:"steps"`
	Running bool                   `json:"running"`
}

func taskStatusCode(err error) int {
	switch {
	case errors.Is(err, executor.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, executor.ErrInvalidTransition), errors.Is(err, executor.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// List handles GET /tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := models.TaskFilter{
		Status: models.TaskStatus(q.Get("status")),
		Mode:   models.TaskMode(q.Get("mode")),
		Limit:  limit,
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if filter.Mode != "" && !filter.Mode.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	tasks, err := h.svc.Pipeline.Tasks(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Get handles GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.svc.Pipeline.Task(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	steps, err := h.svc.Pipeline.Steps(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if steps == nil {
		steps = []models.ExecutionStep{}
	}
	writeJSON(w, http.StatusOK, taskResponse{Task: task, Steps: steps, Running: h.svc.Runner.Running(id)})
}

// Steps handles GET /tasks/{id}/steps
func (h *TaskHandler) Steps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.svc.Pipeline.Steps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if steps == nil {
		steps = []models.ExecutionStep{}
	}
	writeJSON(w, http.StatusOK, steps)
}

// Approve handles POST /tasks/{id}/approve. The approved task starts
// running unless ?run=false.
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.svc.Runner.Approve(r.Context(), id)
	if err != nil {
		writeError(w, taskStatusCode(err), err.Error())
		return
	}
	if r.URL.Query().Get("run") != "false" {
		h.launch(id)
	}
	writeJSON(w, http.StatusOK, task)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// Answer handles POST /tasks/{id}/answer
func (h *TaskHandler) Answer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	task, err := h.svc.Runner.Answer(r.Context(), id, req.Answer)
	if err != nil {
		writeError(w, taskStatusCode(err), err.Error())
		return
	}
	if r.URL.Query().Get("run") != "false" {
		h.launch(id)
	}
	writeJSON(w, http.StatusOK, task)
}

// Run handles POST /tasks/{id}/run. The session runs in the background;
// follow it on /tasks/{id}/stream.
func (h *TaskHandler) Run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.svc.Pipeline.Task(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if task.Status != models.TaskStatusUpcoming {
		writeError(w, http.StatusConflict, "task is "+string(task.Status)+", not upcoming")
		return
	}
	if h.svc.Runner.Running(id) {
		writeError(w, http.StatusConflict, executor.ErrAlreadyRunning.Error())
		return
	}
	h.launch(id)
	writeJSON(w, http.StatusAccepted, task)
}

// RunUpcoming handles POST /tasks/run-upcoming
func (h *TaskHandler) RunUpcoming(w http.ResponseWriter, r *http.Request) {
	go func() {
		if _, err := h.svc.Runner.RunUpcoming(h.svc.Base); err != nil {
			h.logger.Error("run upcoming failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *TaskHandler) launch(id string) {
	go func(ctx context.Context) {
		if err := h.svc.Runner.Run(ctx, id); err != nil {
			h.logger.Error("task run failed", "task_id", id, "error", err)
		}
	}(h.svc.Base)
}

// Projects handles GET /projects
func (h *TaskHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.Projects.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

type projectRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// UpsertProject handles POST /projects
func (h *TaskHandler) UpsertProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id, err := h.svc.Projects.Upsert(r.Context(), req.Name, req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	project, err := h.svc.Projects.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}
