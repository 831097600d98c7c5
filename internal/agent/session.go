package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrNotRunning is returned when messaging a session that has finished.
var ErrNotRunning = errors.New("agent session not running")

const (
	envAPIKey     = "ANTHROPIC_API_KEY"
	envOAuthToken = "CLAUDE_CODE_OAUTH_TOKEN"

	stderrTailLines = 20
	maxLineBytes    = 4 * 1024 * 1024
)

// DefaultArgs drive the Claude CLI in bidirectional stream-json mode.
var DefaultArgs = []string{"-p", "--input-format", "stream-json", "--output-format", "stream-json", "--verbose"}

// Config describes how to spawn the agent process.
type Config struct {
	Command    string
	Args       []string // nil means DefaultArgs
	Dir        string
	ResumeID   string
	APIKey     string
	OAuthToken string
	Logger     *slog.Logger
}

// Session is one live agent process. Events are delivered in order on the
// channel returned by Events, which closes when the process has exited and
// both output streams are drained.
type Session struct {
	cmd    *exec.Cmd
	events chan Event
	done   chan struct{}
	logger *slog.Logger

	mu        sync.Mutex
	stdin     io.WriteCloser
	running   bool
	sessionID string
	exitCode  int
}

// Start spawns the agent in cfg.Dir and sends prompt as the first frame.
func Start(ctx context.Context, cfg Config, prompt string) (*Session, error) {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	args := cfg.Args
	if args == nil {
		args = append([]string(nil), DefaultArgs...)
		if cfg.ResumeID != "" {
			args = append(args, "--resume", cfg.ResumeID)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = agentEnv(os.Environ(), cfg.APIKey, cfg.OAuthToken)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn agent: %w", err)
	}

	s := &Session{
		cmd:     cmd,
		stdin:   stdin,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
		logger:  logger,
		running: true,
	}
	go s.read(stdout, stderr)

	if err := s.SendMessage(prompt); err != nil {
		s.Close()
		return nil, fmt.Errorf("send prompt: %w", err)
	}
	return s, nil
}

// Events returns the ordered event stream.
func (s *Session) Events() <-chan Event { return s.events }

// Running reports whether the session still accepts messages.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SessionID returns the id captured from the init event, for resumption.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SendMessage writes a user frame to the agent's stdin.
func (s *Session) SendMessage(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.stdin == nil {
		return ErrNotRunning
	}

	msg := map[string]interface{}{
		"type": "user",
		"message": map[string]string{
			"role":    "user",
			"content": text,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := s.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close ends input and kills the process if it does not exit promptly.
func (s *Session) Close() error {
	s.mu.Lock()
	s.running = false
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		go func() {
			for range s.events {
			}
		}()
		<-s.done
	}
	return nil
}

// Wait blocks until the process exits and returns its exit code.
func (s *Session) Wait() int {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

func (s *Session) read(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)

	terminal := false
	go func() {
		defer wg.Done()
		emit := func(ev Event) {
			s.observe(ev)
			if ev.Type.Terminal() {
				terminal = true
			}
			s.events <- ev
		}
		err := scanLines(stdout, maxLineBytes,
			func(line string) {
				for _, ev := range ParseLine(line) {
					emit(ev)
				}
			},
			func(n int) {
				s.logger.Warn("agent output line too long, skipped", "bytes", n)
				emit(Event{Type: EventStatus, Text: fmt.Sprintf("skipped %d-byte output line", n)})
			},
		)
		if err != nil {
			s.logger.Error("agent stdout read failed", "error", err)
			if !terminal {
				emit(Event{Type: EventError, Text: "agent output unreadable: " + err.Error(), IsError: true})
			}
			io.Copy(io.Discard, stdout)
		}
	}()

	var tailMu sync.Mutex
	var tail []string
	go func() {
		defer wg.Done()
		err := scanLines(stderr, maxLineBytes,
			func(line string) {
				s.logger.Debug("agent stderr", "line", line)
				tailMu.Lock()
				tail = append(tail, line)
				if len(tail) > stderrTailLines {
					tail = tail[len(tail)-stderrTailLines:]
				}
				tailMu.Unlock()
			},
			func(n int) {
				s.logger.Warn("agent stderr line too long, skipped", "bytes", n)
			},
		)
		if err != nil {
			s.logger.Warn("agent stderr read failed", "error", err)
			io.Copy(io.Discard, stderr)
		}
	}()

	wg.Wait()
	waitErr := s.cmd.Wait()

	code := 0
	if s.cmd.ProcessState != nil {
		code = s.cmd.ProcessState.ExitCode()
	} else if waitErr != nil {
		code = -1
	}

	s.mu.Lock()
	s.running = false
	s.exitCode = code
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.mu.Unlock()

	if code != 0 && !terminal {
		msg := strings.TrimSpace(strings.Join(tail, "\n"))
		if msg == "" {
			msg = fmt.Sprintf("agent exited with code %d", code)
		}
		s.events <- Event{Type: EventError, Text: msg, IsError: true, ExitCode: code}
	}
	close(s.events)
	close(s.done)
}

// scanLines calls fn for every newline-terminated line of r. A line longer
// than max is discarded whole and reported to skipped, and reading goes on
// with the next line.
func scanLines(r io.Reader, max int, fn func(line string), skipped func(n int)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	oversized := 0
	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case oversized > 0:
			oversized += len(chunk)
		case len(line)+len(chunk) > max:
			oversized = len(line) + len(chunk)
			line = line[:0]
		default:
			line = append(line, chunk...)
		}
		if err == bufio.ErrBufferFull {
			continue
		}

		if oversized > 0 {
			skipped(oversized)
			oversized = 0
		} else if len(line) > 0 {
			fn(string(bytes.TrimRight(line, "\r\n")))
		}
		line = line[:0]

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) observe(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Type == EventInit && ev.SessionID != "" {
		s.sessionID = ev.SessionID
	}
	if ev.Type.Terminal() {
		s.running = false
	}
}

// agentEnv strips both auth variables from base and sets exactly one,
// preferring the OAuth token.
func agentEnv(base []string, apiKey, oauthToken string) []string {
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, envAPIKey+"=") || strings.HasPrefix(kv, envOAuthToken+"=") {
			continue
		}
		env = append(env, kv)
	}
	switch {
	case oauthToken != "":
		env = append(env, envOAuthToken+"="+oauthToken)
	case apiKey != "":
		env = append(env, envAPIKey+"="+apiKey)
	}
	return env
}
