package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoclawd",
		Short: "Ambient capture-to-action assistant",
		Long: `autoclawd listens in the background, turns what you say into a world model
and a todo list, and hands actionable requests to a coding agent.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newIngestCmd(),
		newSynthesizeCmd(),
		newCleanupCmd(),
		newTasksCmd(),
		newRunCmd(),
		newAnswerCmd(),
	)
	return root
}

// newLogger builds the process logger. LOG_LEVEL=debug enables debug output.
func newLogger(level string, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

// bootstrap loads config and builds the application. Logs go to w.
func bootstrap(w io.Writer, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel, w)
	a, err := newApp(cfg, logger, opts)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return nil, err
	}
	return a, nil
}
