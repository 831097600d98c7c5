package notify

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSpeaker_RunsCommandWithText(t *testing.T) {
	target := filepath.Join(t.TempDir(), "Noted. dark mode")
	s := NewSpeaker("touch", slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.Notify(target)
	s.Wait()

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected command to receive text as argument: %v", err)
	}
}

func TestSpeaker_EmptyCommandDoesNotSpawn(t *testing.T) {
	s := NewSpeaker("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Notify("Noted. something")
	s.Notify("   ")
	s.Wait()
}

func TestSpeaker_FailureIsSwallowed(t *testing.T) {
	s := NewSpeaker("/nonexistent/say-binary", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Notify("hello")
	s.Wait()
}
