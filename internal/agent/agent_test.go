package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []Event
	}{
		{
			name: "init",
			line: `{"type":"system","subtype":"init","session_id":"abc"}`,
			want: []Event{{Type: EventInit, SessionID: "abc"}},
		},
		{
			name: "assistant text and tool use",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"Looking"},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/a/go.mod"}}]}}`,
			want: []Event{
				{Type: EventText, Text: "Looking"},
				{Type: EventToolUse, ToolName: "Read", ToolID: "t1", Detail: "/a/go.mod"},
			},
		},
		{
			name: "tool result",
			line: `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":[{"type":"text","text":"module x"}]}]}}`,
			want: []Event{{Type: EventToolResult, ToolID: "t1", Text: "module x"}},
		},
		{
			name: "result",
			line: `{"type":"result","subtype":"success","result":"Done","session_id":"abc"}`,
			want: []Event{{Type: EventResult, Text: "Done", SessionID: "abc"}},
		},
		{
			name: "error result",
			line: `{"type":"result","subtype":"error_max_turns","is_error":true}`,
			want: []Event{{Type: EventError, Text: "error_max_turns", IsError: true}},
		},
		{
			name: "error",
			line: `{"type":"error","error":{"message":"overloaded"}}`,
			want: []Event{{Type: EventError, Text: "overloaded", IsError: true}},
		},
		{
			name: "nested stream delta",
			line: `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}}`,
			want: []Event{{Type: EventText, Text: "Hel"}},
		},
		{
			name: "top-level tool start",
			line: `{"type":"content_block_start","content_block":{"type":"tool_use","id":"t2","name":"Bash","input":{"command":"go test ./..."}}}`,
			want: []Event{{Type: EventToolUse, ToolName: "Bash", ToolID: "t2", Detail: "go test ./..."}},
		},
		{
			name: "plain text",
			line: "Loading configuration",
			want: []Event{{Type: EventStatus, Text: "Loading configuration"}},
		},
		{
			name: "unknown type",
			line: `{"type":"ping"}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLine(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %+v", len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("event %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestAgentEnv(t *testing.T) {
	base := []string{"PATH=/bin", "ANTHROPIC_API_KEY=old", "CLAUDE_CODE_OAUTH_TOKEN=older", "HOME=/root"}

	tests := []struct {
		name      string
		apiKey    string
		oauth     string
		wantKey   bool
		wantOAuth bool
	}{
		{"oauth preferred", "k", "o", false, true},
		{"api key only", "k", "", true, false},
		{"neither", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := agentEnv(base, tt.apiKey, tt.oauth)
			var keys, oauths int
			for _, kv := range env {
				if strings.HasPrefix(kv, envAPIKey+"=") {
					keys++
					if kv != envAPIKey+"="+tt.apiKey {
						t.Fatalf("stale api key leaked: %s", kv)
					}
				}
				if strings.HasPrefix(kv, envOAuthToken+"=") {
					oauths++
					if kv != envOAuthToken+"="+tt.oauth {
						t.Fatalf("stale oauth token leaked: %s", kv)
					}
				}
			}
			if (keys == 1) != tt.wantKey || (oauths == 1) != tt.wantOAuth || keys > 1 || oauths > 1 {
				t.Fatalf("unexpected auth env: %v", env)
			}
			if keys+oauths > 1 {
				t.Fatal("both auth variables present")
			}
		})
	}
}

func collect(t *testing.T, s *Session) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestSession_StreamsToResult(t *testing.T) {
	script := `read line
case "$line" in *"fix the bug"*) ;; *) exit 9 ;; esac
echo '{"type":"system","subtype":"init","session_id":"sess-1"}'
echo '{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}'
echo '{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"go.mod"}]}}'
echo '{"type":"result","subtype":"success","result":"fixed","session_id":"sess-1"}'`

	s, err := Start(context.Background(), Config{Command: "sh", Args: []string{"-c", script}, Logger: testLogger()}, "please fix the bug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(t, s)

	var types []string
	for _, ev := range events {
		types = append(types, string(ev.Type))
	}
	if strings.Join(types, ",") != "init,tool_use,tool_result,result" {
		t.Fatalf("unexpected event sequence: %v", types)
	}
	if s.SessionID() != "sess-1" {
		t.Fatalf("expected session id captured, got %q", s.SessionID())
	}
	if s.Wait() != 0 {
		t.Fatal("expected clean exit")
	}
	if err := s.SendMessage("more"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSession_NonZeroExitSurfacesError(t *testing.T) {
	script := `read line
echo 'auth failed: token expired' >&2
exit 3`

	s, err := Start(context.Background(), Config{Command: "sh", Args: []string{"-c", script}, Logger: testLogger()}, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(t, s)
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected one error event, got %+v", events)
	}
	if events[0].ExitCode != 3 || !strings.Contains(events[0].Text, "token expired") {
		t.Fatalf("unexpected error event: %+v", events[0])
	}
	if s.Running() {
		t.Fatal("session must not report running after exit")
	}
}

func TestSession_FollowUpMessage(t *testing.T) {
	script := `read first
echo '{"type":"system","subtype":"init","session_id":"s"}'
read second
case "$second" in *"also add tests"*) echo '{"type":"result","result":"both done"}' ;; esac`

	s, err := Start(context.Background(), Config{Command: "sh", Args: []string{"-c", script}, Logger: testLogger()}, "implement it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := <-s.Events()
	if first.Type != EventInit {
		t.Fatalf("expected init, got %+v", first)
	}
	if err := s.SendMessage("also add tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rest := collect(t, s)
	if len(rest) != 1 || rest[0].Type != EventResult || rest[0].Text != "both done" {
		t.Fatalf("unexpected events: %+v", rest)
	}
}

func TestStart_SpawnFailure(t *testing.T) {
	_, err := Start(context.Background(), Config{Command: "/nonexistent/agent-binary", Logger: testLogger()}, "x")
	if err == nil {
		t.Fatal("expected spawn error")
	}
}

func TestSession_OversizedLineIsSkipped(t *testing.T) {
	script := `read line
head -c 5000000 /dev/zero | tr '\0' 'x'
echo
echo '{"type":"result","result":"done","session_id":"sess-big"}'`

	s, err := Start(context.Background(), Config{Command: "sh", Args: []string{"-c", script}, Logger: testLogger()}, "dump the log")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(t, s)
	if len(events) != 2 {
		t.Fatalf("expected skip notice and result, got %+v", events)
	}
	if events[0].Type != EventStatus || !strings.Contains(events[0].Text, "5000001-byte") {
		t.Fatalf("unexpected skip notice: %+v", events[0])
	}
	if events[1].Type != EventResult || events[1].Text != "done" {
		t.Fatalf("expected result after oversized line, got %+v", events[1])
	}
	if code := s.Wait(); code != 0 {
		t.Fatalf("expected clean exit, got %d", code)
	}
}

func TestScanLines(t *testing.T) {
	in := "short\n" + strings.Repeat("y", 40) + "\nafter\r\nlast"
	var lines []string
	var skipped []int
	err := scanLines(strings.NewReader(in), 16,
		func(line string) { lines = append(lines, line) },
		func(n int) { skipped = append(skipped, n) },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"short", "after", "last"}
	if strings.Join(lines, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, lines)
	}
	if len(skipped) != 1 || skipped[0] != 41 {
		t.Fatalf("expected one 41-byte skip, got %v", skipped)
	}
}
