package api

import (
	"context"
	"net/http"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/capture"
)

type CaptureHandler struct {
	base  context.Context
	cycle *capture.Cycle
}

// NewCaptureHandler drives the capture cycle. Sessions started over HTTP
// live as long as base, not the request.
func NewCaptureHandler(base context.Context, cycle *capture.Cycle) *CaptureHandler {
	return &CaptureHandler{base: base, cycle: cycle}
}

type captureResponse struct {
	Changed bool           `json:"changed"`
	Status  capture.Status `json:"status"`
}

func (h *CaptureHandler) respond(w http.ResponseWriter, changed bool) {
	status := http.StatusOK
	if !changed {
		status = http.StatusConflict
	}
	writeJSON(w, status, captureResponse{Changed: changed, Status: h.cycle.Status()})
}

// Status handles GET /capture
func (h *CaptureHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cycle.Status())
}

// Start handles POST /capture/start
func (h *CaptureHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.cycle.Start(h.base))
}

// Pause handles POST /capture/pause
func (h *CaptureHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.cycle.Pause())
}

// Resume handles POST /capture/resume
func (h *CaptureHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.cycle.Resume())
}

// Stop handles POST /capture/stop
func (h *CaptureHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.cycle.Stop())
}
