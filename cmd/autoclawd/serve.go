package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/api"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
)

func newServeCmd() *cobra.Command {
	var listen bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture loop, task runner, and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(listen)
		},
	}
	cmd.Flags().BoolVar(&listen, "listen", true, "start capturing audio immediately")
	return cmd
}

func runServe(listen bool) error {
	a, err := bootstrap(os.Stdout, appOptions{Speak: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := llm.Check(ctx, a.llm); err != nil {
		logger.Warn("inference not available at startup, will retry on first use", "error", err)
	}

	cycle := a.newCapture()
	if cycle != nil && listen {
		cycle.Start(ctx)
	}

	if a.cfg.AutoRunTasks {
		go a.runner.Loop(ctx, a.cfg.TaskPollInterval)
	}

	router := api.NewRouter(api.Services{
		Base:        ctx,
		LLM:         a.llm,
		Capture:     cycle,
		Processor:   a.processor,
		Items:       a.items,
		Synthesizer: a.synthesizer,
		Diagnostics: a.diag,
		Documents:   a.documents,
		Pipeline:    a.pipeline,
		Projects:    a.projects,
		Runner:      a.runner,
		Hub:         a.hub,
	}, a.cfg.APIKey, logger)

	// No WriteTimeout: task streams stay open for the length of a run.
	addr := fmt.Sprintf(":%d", a.cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("autoclawd server starting", "addr", addr, "capture", cycle != nil && listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if cycle != nil {
		cycle.Stop()
		cycle.Wait()
	}

	logger.Info("server stopped")
	return nil
}
