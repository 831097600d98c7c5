package agent

import (
	"encoding/json"
	"strings"
)

// EventType discriminates agent stream events.
type EventType string

const (
	EventInit       EventType = "init"
	EventText       EventType = "text"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventResult     EventType = "result"
	EventError      EventType = "error"
	EventStatus     EventType = "status"
)

// Terminal reports whether the event ends a turn.
func (t EventType) Terminal() bool {
	return t == EventResult || t == EventError
}

// Event is one typed lifecycle event from the agent process.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Text      string    `json:"text,omitempty"`
	ToolName  string    `json:"toolName,omitempty"`
	ToolID    string    `json:"toolId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	IsError   bool      `json:"isError,omitempty"`
	ExitCode  int       `json:"exitCode,omitempty"`
}

// ParseLine parses one NDJSON line from the agent's stdout. Some lines
// carry several content blocks and yield several events; lines that are
// not JSON become status events.
func ParseLine(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return []Event{{Type: EventStatus, Text: line}}
	}

	eventType, _ := data["type"].(string)
	switch eventType {
	case "system":
		subtype := getString(data, "subtype")
		if subtype == "init" {
			return []Event{{Type: EventInit, SessionID: getString(data, "session_id")}}
		}
		if subtype != "" {
			return []Event{{Type: EventStatus, Text: subtype}}
		}

	case "assistant":
		return parseContent(data, false)

	case "user":
		return parseContent(data, true)

	case "result":
		text := getString(data, "result")
		subtype := getString(data, "subtype")
		isErr, _ := data["is_error"].(bool)
		if isErr || strings.HasPrefix(subtype, "error") {
			if text == "" {
				text = subtype
			}
			return []Event{{Type: EventError, Text: text, SessionID: getString(data, "session_id"), IsError: true}}
		}
		return []Event{{Type: EventResult, Text: text, SessionID: getString(data, "session_id")}}

	case "error":
		msg := getString(data, "message")
		if errData, ok := data["error"].(map[string]interface{}); ok {
			if m := getString(errData, "message"); m != "" {
				msg = m
			}
		}
		if msg == "" {
			msg = "agent reported an error"
		}
		return []Event{{Type: EventError, Text: msg, IsError: true}}

	case "stream_event":
		if inner, ok := data["event"].(map[string]interface{}); ok {
			return parseStreamEvent(inner)
		}

	default:
		return parseStreamEvent(data)
	}
	return nil
}

// parseContent turns message content blocks into events. Tool results only
// appear in user messages.
func parseContent(data map[string]interface{}, fromUser bool) []Event {
	message, ok := data["message"].(map[string]interface{})
	if !ok {
		return nil
	}
	content, ok := message["content"].([]interface{})
	if !ok {
		return nil
	}

	var events []Event
	for _, c := range content {
		block, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		switch getString(block, "type") {
		case "text":
			if fromUser {
				continue
			}
			if text := getString(block, "text"); text != "" {
				events = append(events, Event{Type: EventText, Text: text})
			}
		case "tool_use":
			name := getString(block, "name")
			input, _ := block["input"].(map[string]interface{})
			events = append(events, Event{
				Type:     EventToolUse,
				ToolName: name,
				ToolID:   getString(block, "id"),
				Detail:   toolDetail(name, input),
			})
		case "tool_result":
			isErr, _ := block["is_error"].(bool)
			events = append(events, Event{
				Type:    EventToolResult,
				ToolID:  getString(block, "tool_use_id"),
				Text:    resultText(block["content"]),
				IsError: isErr,
			})
		}
	}
	return events
}

// parseStreamEvent merges partial streaming deltas into the same vocabulary.
func parseStreamEvent(data map[string]interface{}) []Event {
	switch getString(data, "type") {
	case "content_block_delta":
		delta, ok := data["delta"].(map[string]interface{})
		if !ok {
			return nil
		}
		switch getString(delta, "type") {
		case "text_delta":
			if text := getString(delta, "text"); text != "" {
				return []Event{{Type: EventText, Text: text}}
			}
		case "thinking_delta":
			return []Event{{Type: EventStatus, Text: "thinking"}}
		}
	case "content_block_start":
		block, ok := data["content_block"].(map[string]interface{})
		if !ok {
			return nil
		}
		switch getString(block, "type") {
		case "tool_use":
			name := getString(block, "name")
			input, _ := block["input"].(map[string]interface{})
			return []Event{{Type: EventToolUse, ToolName: name, ToolID: getString(block, "id"), Detail: toolDetail(name, input)}}
		case "text":
			if text := getString(block, "text"); text != "" {
				return []Event{{Type: EventText, Text: text}}
			}
		}
	case "message_start":
		return []Event{{Type: EventStatus, Text: "responding"}}
	}
	return nil
}

func resultText(v interface{}) string {
	switch c := v.(type) {
	case string:
		return c
	case []interface{}:
		var parts []string
		for _, item := range c {
			if m, ok := item.(map[string]interface{}); ok {
				if t := getString(m, "text"); t != "" {
					parts = append(parts, t)
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// toolDetail extracts a short human-readable argument from tool input.
func toolDetail(name string, input map[string]interface{}) string {
	if len(input) == 0 {
		return ""
	}

	switch name {
	case "Read", "Write", "Edit":
		if fp := getString(input, "file_path"); fp != "" {
			return fp
		}
	case "Bash":
		if cmd := getString(input, "command"); cmd != "" {
			if len(cmd) > 60 {
				cmd = cmd[:60] + "..."
			}
			return cmd
		}
	case "Grep":
		if pattern := getString(input, "pattern"); pattern != "" {
			detail := "\"" + pattern + "\""
			if path := getString(input, "path"); path != "" {
				detail += " in " + path
			}
			return detail
		}
	case "WebFetch":
		return getString(input, "url")
	case "WebSearch":
		if q := getString(input, "query"); q != "" {
			return "\"" + q + "\""
		}
	}

	for _, key := range []string{"file_path", "pattern", "description"} {
		if v := getString(input, key); v != "" {
			return v
		}
	}
	return ""
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
