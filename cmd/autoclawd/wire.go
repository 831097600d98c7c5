package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/agent"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/analysis"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/audio"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/capture"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/config"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/docs"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/executor"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/knowledge"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/notify"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/pipeline"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/skills"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/store"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/tasks"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/transcribe"
)

type appOptions struct {
	// Speak enables spoken announcements of accepted knowledge.
	Speak bool
}

// app holds every long-lived component.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	llm         *llm.OllamaClient
	items       *store.KnowledgeStore
	pipeline    *store.PipelineStore
	projects    *store.ProjectStore
	documents   *docs.Store
	diag        *knowledge.Diagnostics
	synthesizer *knowledge.Synthesizer
	processor   *pipeline.Processor
	hub         *executor.Hub
	runner      *executor.Runner
	speaker     *notify.Speaker
}

func newApp(cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Stores
	kdb, err := store.OpenKnowledge(cfg.KnowledgeDBPath())
	if err != nil {
		return nil, fmt.Errorf("open knowledge db: %w", err)
	}
	a.items = store.NewKnowledgeStore(kdb, logger)

	pdb, err := store.OpenPipeline(cfg.PipelineDBPath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open pipeline db: %w", err)
	}
	a.pipeline = store.NewPipelineStore(pdb, logger)

	jdb, err := store.OpenProjects(cfg.ProjectsDBPath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open projects db: %w", err)
	}
	a.projects = store.NewProjectStore(jdb, logger)
	a.documents = docs.NewStore(cfg.DocumentsDir())

	// Skills and rules
	found, err := skills.ScanSkills(cfg.SkillDirs)
	if err != nil {
		logger.Warn("skill scan incomplete", "error", err)
	}
	registry := skills.NewRegistry(found)
	rules, err := skills.LoadRules(cfg.RulesPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}
	for _, seed := range rules.Projects {
		if _, err := a.projects.Upsert(context.Background(), seed.Name, seed.Path); err != nil {
			logger.Warn("failed to register project", "name", seed.Name, "error", err)
		}
	}
	logger.Info("skills loaded", "count", len(registry.List()), "projects", len(rules.Projects))

	// External services
	a.llm = llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.InferenceModel, cfg.InferenceTimeout, logger)
	whisper := transcribe.NewWhisperClient(cfg.TranscribeURL, cfg.TranscribeAPIKey, cfg.TranscribeModel, cfg.TranscribeTimeout, logger)

	var notifier knowledge.Notifier
	if opts.Speak {
		a.speaker = notify.NewSpeaker(cfg.SpeakCommand, logger)
		notifier = a.speaker
	}

	// Knowledge
	a.diag = knowledge.NewDiagnostics()
	cleaner := knowledge.NewCleaner(a.llm, a.items, a.documents, a.diag, logger)
	a.synthesizer = knowledge.NewSynthesizer(a.llm, a.items, a.documents, cleaner, a.diag, logger)

	// Pipeline
	a.processor = pipeline.NewProcessor(pipeline.Config{
		Transcriber: whisper,
		Classifier:  knowledge.NewClassifier(a.llm, a.items, notifier, a.diag, logger),
		Synthesizer: a.synthesizer,
		Items:       a.items,
		Cleaner:     pipeline.NewCleaner(a.llm, logger),
		Analyzer:    analysis.NewAnalyzer(a.llm, a.projects, a.pipeline, logger),
		Creator:     tasks.NewCreator(tasks.NewPlanner(a.llm, registry, logger), registry, rules, a.pipeline, logger),
		Pipeline:    a.pipeline,
		Threshold:   cfg.SynthesisThreshold,
		KeepAudio:   cfg.KeepAudio,
		Logger:      logger,
	})

	// Execution
	a.hub = executor.NewHub()
	a.runner = executor.NewRunner(agent.Config{
		Command:    cfg.AgentCommand,
		APIKey:     cfg.AnthropicAPIKey,
		OAuthToken: cfg.ClaudeOAuthToken,
	}, a.pipeline, a.projects, a.hub, logger)

	return a, nil
}

// newCapture builds the recording loop, or nil when no recorder is configured.
func (a *app) newCapture() *capture.Cycle {
	if a.cfg.RecordCommand == "" {
		return nil
	}
	return capture.NewCycle(capture.Config{
		Recorder:      audio.NewCommandRecorder(a.cfg.RecordCommand, a.logger),
		Meter:         audio.NewWAVMeter(),
		Handoff:       a.processor.HandleChunk,
		Dir:           a.cfg.ChunkDir(),
		ChunkDuration: a.cfg.ChunkDuration,
		Logger:        a.logger,
	})
}

// Close flushes pending writes and closes every store.
func (a *app) Close() {
	if a.speaker != nil {
		a.speaker.Wait()
	}
	closers := map[string]interface{ Close() error }{}
	if a.items != nil {
		closers["knowledge"] = a.items
	}
	if a.pipeline != nil {
		closers["pipeline"] = a.pipeline
	}
	if a.projects != nil {
		closers["projects"] = a.projects
	}
	for name, c := range closers {
		if err := c.Close(); err != nil {
			a.logger.Error("close store", "store", name, "error", err)
		}
	}
}
