package api

import (
	"net/http"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/capture"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Inference ServiceCheck           `json:"inference"`
	Knowledge ServiceCheck           `json:"knowledge"`
	Counts    models.KnowledgeCounts `json:"counts"`
	Capture   *capture.Status        `json:"capture,omitempty"`
}

type HealthHandler struct {
	svc Services
}

func NewHealthHandler(svc Services) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health handles GET /health. An unreachable inference backend degrades
// the status but capture keeps running.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	if h.svc.LLM != nil && h.svc.LLM.IsAvailable(r.Context()) {
		resp.Inference = ServiceCheck{Status: "ok"}
	} else {
		resp.Inference = ServiceCheck{Status: "error", Message: "inference backend unavailable"}
		resp.Status = "degraded"
	}

	counts, err := h.svc.Items.Counts(r.Context())
	if err != nil {
		resp.Knowledge = ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Knowledge = ServiceCheck{Status: "ok"}
		resp.Counts = counts
	}

	if h.svc.Capture != nil {
		st := h.svc.Capture.Status()
		resp.Capture = &st
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
