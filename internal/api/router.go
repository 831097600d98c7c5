package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/capture"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/docs"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/executor"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/knowledge"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/pipeline"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
)

// Services are the components the HTTP surface drives. Capture may be nil
// when no recorder is configured.
type Services struct {
	Base        context.Context
	LLM         llm.Gateway
	Capture     *capture.Cycle
	Processor   *pipeline.Processor
	Items       *store.KnowledgeStore
	Synthesizer *knowledge.Synthesizer
	Diagnostics *knowledge.Diagnostics
	Documents   *docs.Store
	Pipeline    *store.PipelineStore
	Projects    *store.ProjectStore
	Runner      *executor.Runner
	Hub         *executor.Hub
}

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(svc Services, apiKey string, logger *slog.Logger) *chi.Mux {
	if svc.Base == nil {
		svc.Base = context.Background()
	}

	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(svc)
	knowledgeH := NewKnowledgeHandler(svc, logger)
	taskH := NewTaskHandler(svc, logger)

	r.Get("/health", healthH.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		if svc.Capture != nil {
			captureH := NewCaptureHandler(svc.Base, svc.Capture)
			r.Route("/capture", func(r chi.Router) {
				r.Get("/", captureH.Status)
				r.Post("/start", captureH.Start)
				r.Post("/pause", captureH.Pause)
				r.Post("/resume", captureH.Resume)
				r.Post("/stop", captureH.Stop)
			})
		}

		r.Route("/transcripts", func(r chi.Router) {
			r.Get("/", knowledgeH.Transcripts)
			r.Post("/", knowledgeH.Ingest)
		})
		r.Get("/analyses", knowledgeH.Analyses)

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", knowledgeH.List)
			r.Patch("/{id}", knowledgeH.Update)
			r.Post("/synthesize", knowledgeH.Synthesize)
			r.Post("/cleanup", knowledgeH.Cleanup)
		})
		r.Get("/documents", knowledgeH.Documents)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskH.List)
			r.Post("/run-upcoming", taskH.RunUpcoming)
			r.Get("/{id}", taskH.Get)
			r.Post("/{id}/approve", taskH.Approve)
			r.Post("/{id}/answer", taskH.Answer)
			r.Post("/{id}/run", taskH.Run)
			r.Get("/{id}/steps", taskH.Steps)
			r.Get("/{id}/stream", taskH.Stream)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", taskH.Projects)
			r.Post("/", taskH.UpsertProject)
		})
	})

	return r
}
