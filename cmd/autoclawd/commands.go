package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/mcp"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
	"github.com/sameeeeeeep/autoclawd-sub001/internal/ui"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the knowledge and task tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			a, err := bootstrap(os.Stderr, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			return mcp.Serve(mcp.Deps{
				Processor:   a.processor,
				Synthesizer: a.synthesizer,
				Documents:   a.documents,
				Pipeline:    a.pipeline,
				Runner:      a.runner,
			})
		},
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [text...]",
		Short: "Run text through the pipeline as if it had been spoken (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			a, err := bootstrap(os.Stderr, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.processor.IngestText(ctx, text)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.HeaderStyle.Render(fmt.Sprintf("KNOWLEDGE (%d)", len(res.Items))))
			for _, it := range res.Items {
				fmt.Fprintf(out, "  %s %s %s\n", ui.DimStyle.Render(string(it.Decision)), it.Content, ui.DimStyle.Render("#"+string(it.Bucket)))
			}
			if res.Analysis != nil && res.Analysis.Summary != "" {
				fmt.Fprintln(out, ui.DimStyle.Render(res.Analysis.Summary))
			}
			if len(res.Tasks) > 0 {
				fmt.Fprintln(out, ui.RenderTaskList(res.Tasks))
			}
			return nil
		},
	}
}

func newSynthesizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "synthesize",
		Short: "Fold pending knowledge into the world model and todo list",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(os.Stderr, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.synthesizer.Synthesize(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Rewrite stale documents and collapse duplicate knowledge",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(os.Stderr, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.synthesizer.Cleanup(ctx)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newTasksCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.TaskFilter{Status: models.TaskStatus(status), Limit: limit}
			if filter.Status != "" && !filter.Status.IsValid() {
				return fmt.Errorf("invalid status %q", status)
			}
			a, err := bootstrap(os.Stderr, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.pipeline.Tasks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderTaskList(list))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "max tasks to show")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>",
		Short: "Run an upcoming task in the foreground and stream the agent's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(os.Stderr, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()
			return runTask(ctx, a, args[0], cmd.OutOrStdout())
		},
	}
}

func newAnswerCmd() *cobra.Command {
	var run bool
	cmd := &cobra.Command{
		Use:   "answer <task-id> <answer...>",
		Short: "Answer a task's pending question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(os.Stderr, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := signalContext()
			defer cancel()

			task, err := a.runner.Answer(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if !run {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderTask(*task))
				return nil
			}
			return runTask(ctx, a, task.ID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&run, "run", true, "run the task right after answering")
	return cmd
}

// runTask runs one task while rendering its events to out.
func runTask(ctx context.Context, a *app, id string, out io.Writer) error {
	subCtx, unsubscribe := context.WithCancel(ctx)
	events := a.hub.Subscribe(subCtx, id)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if line := ui.RenderEvent(ev.Event); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	runErr := a.runner.Run(ctx, id)
	unsubscribe()
	<-done
	if runErr != nil {
		return runErr
	}

	task, err := a.pipeline.Task(ctx, id)
	if err != nil {
		return err
	}
	if task != nil {
		fmt.Fprintln(out, ui.RenderTask(*task))
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
