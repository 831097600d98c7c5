package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Recording is one in-progress chunk. Stop finalizes the output file.
type Recording interface {
	Stop() error
}

// CommandRecorder records chunks by launching an external recorder (sox
// `rec` by default) with the output path appended to its arguments.
type CommandRecorder struct {
	command []string
	logger  *slog.Logger
}

func NewCommandRecorder(command string, logger *slog.Logger) *CommandRecorder {
	return &CommandRecorder{command: strings.Fields(command), logger: logger}
}

// Start launches the recorder writing to path.
func (r *CommandRecorder) Start(ctx context.Context, path string) (Recording, error) {
	if len(r.command) == 0 {
		return nil, fmt.Errorf("record command is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}

	args := append(append([]string(nil), r.command[1:]...), path)
	cmd := exec.Command(r.command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	p := &process{cmd: cmd, stderr: &stderr, done: make(chan error, 1), logger: r.logger}
	go func() { p.done <- cmd.Wait() }()
	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	done   chan error
	logger *slog.Logger
	once   sync.Once
	err    error
}

// Stop interrupts the recorder so it flushes its header, escalating to
// kill if it does not exit promptly.
func (p *process) Stop() error {
	p.once.Do(func() {
		_ = p.cmd.Process.Signal(syscall.SIGINT)
		select {
		case err := <-p.done:
			p.err = exitError(err)
		case <-time.After(3 * time.Second):
			_ = p.cmd.Process.Kill()
			<-p.done
			p.err = fmt.Errorf("recorder did not exit after interrupt")
		}
		if p.err != nil {
			p.logger.Warn("recorder exited abnormally", "error", p.err, "stderr", strings.TrimSpace(p.stderr.String()))
		}
	})
	return p.err
}

// exitError ignores the exit status produced by our own interrupt.
func exitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGINT {
			return nil
		}
		if exitErr.ExitCode() == 130 || exitErr.ExitCode() == 2 {
			return nil
		}
	}
	return err
}
