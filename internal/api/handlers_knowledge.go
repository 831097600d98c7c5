package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/knowledge"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

type KnowledgeHandler struct {
	svc    Services
	logger *slog.Logger
}

func NewKnowledgeHandler(svc Services, logger *slog.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc, logger: logger}
}

type knowledgeListResponse struct {
	Items       []models.KnowledgeItem `json:"items"`
	Counts      models.KnowledgeCounts `json:"counts"`
	Diagnostics map[string]int         `json:"diagnostics"`
}

// List handles GET /knowledge. ?pending=true narrows to pending accepted
// items.
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	var items []models.KnowledgeItem
	var err error
	if pending, _ := strconv.ParseBool(r.URL.Query().Get("pending")); pending {
		items, err = h.svc.Items.PendingAccepted(r.Context())
	} else {
		items, err = h.svc.Items.All(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := h.svc.Items.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []models.KnowledgeItem{}
	}
	writeJSON(w, http.StatusOK, knowledgeListResponse{
		Items:       items,
		Counts:      counts,
		Diagnostics: h.svc.Diagnostics.Snapshot(),
	})
}

// Update handles PATCH /knowledge/{id}
func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Override != nil && !req.Override.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid override")
		return
	}
	if req.Bucket != nil && !req.Bucket.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid bucket")
		return
	}

	item, err := h.svc.Items.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "knowledge item not found")
		return
	}

	switch {
	case req.ClearOverride:
		h.svc.Items.SetOverride(id, nil)
	case req.Override != nil:
		h.svc.Items.SetOverride(id, req.Override)
	}
	if req.Bucket != nil {
		h.svc.Items.SetBucket(id, *req.Bucket)
	}

	item, err = h.svc.Items.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Synthesize handles POST /knowledge/synthesize
func (h *KnowledgeHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Synthesizer.Synthesize(r.Context())
	if err != nil {
		h.logger.Warn("manual synthesis failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cleanupResponse struct {
	Result knowledge.CleanupResult `json:"result"`
	Error  string                  `json:"error,omitempty"`
}

// Cleanup handles POST /knowledge/cleanup. Either half may fail on its own,
// so partial results are returned alongside the error.
func (h *KnowledgeHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Synthesizer.Cleanup(r.Context())
	if errors.Is(err, knowledge.ErrNoCleaner) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := cleanupResponse{Result: res}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// Documents handles GET /documents
func (h *KnowledgeHandler) Documents(w http.ResponseWriter, r *http.Request) {
	documents, err := h.svc.Documents.Read()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

type ingestRequest struct {
	Text string `json:"text"`
}

// Ingest handles POST /transcripts. The text runs through the same pipeline
// as a transcribed chunk.
func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	res, err := h.svc.Processor.IngestText(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Transcripts handles GET /transcripts
func (h *KnowledgeHandler) Transcripts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.Pipeline.Transcripts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		out = []models.CleanedTranscript{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Analyses handles GET /analyses
func (h *KnowledgeHandler) Analyses(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.Pipeline.Analyses(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		out = []models.TranscriptAnalysis{}
	}
	writeJSON(w, http.StatusOK, out)
}
