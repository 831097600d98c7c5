package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const speakTimeout = 30 * time.Second

// Speaker announces short phrases through a text-to-speech command such as
// macOS say. The phrase is passed as the final argument.
type Speaker struct {
	command []string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewSpeaker builds a speaker from a command line. An empty command logs
// notifications instead of speaking them.
func NewSpeaker(command string, logger *slog.Logger) *Speaker {
	return &Speaker{command: strings.Fields(command), logger: logger}
}

// Notify speaks text in the background and returns immediately.
func (s *Speaker) Notify(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if len(s.command) == 0 {
		s.logger.Info("notification", "text", text)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
		defer cancel()

		args := append(append([]string(nil), s.command[1:]...), text)
		if out, err := exec.CommandContext(ctx, s.command[0], args...).CombinedOutput(); err != nil {
			s.logger.Warn("speak failed", "error", err, "output", strings.TrimSpace(string(out)))
		}
	}()
}

// Wait blocks until in-flight announcements finish.
func (s *Speaker) Wait() {
	s.wg.Wait()
}
