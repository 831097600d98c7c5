package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/llm"
)

const cleanMaxTokens = 512

// Cleaned is the output of the text-cleaning pass.
type Cleaned struct {
	Text         string
	Continuation bool
}

// Cleaner denoises raw transcript text and decides whether it continues the
// previous utterance.
type Cleaner struct {
	llm    llm.Gateway
	logger *slog.Logger
}

func NewCleaner(gw llm.Gateway, logger *slog.Logger) *Cleaner {
	return &Cleaner{llm: gw, logger: logger}
}

const cleanPrompt = `Clean up this speech-to-text transcript.
Remove filler words, false starts, and transcription noise. Keep the speaker's meaning and wording.
If nothing meaningful was said, use NONE as the text.

Previous utterance: %s

Answer with exactly two lines:
CONTINUATION: yes if this continues the previous utterance mid-thought, otherwise no
TEXT: the cleaned text

Transcript:
%s`

// Clean runs the cleaning call. When inference fails the raw text passes
// through unchanged. An empty Text means nothing worth keeping was said.
func (c *Cleaner) Clean(ctx context.Context, raw, previous string) Cleaned {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Cleaned{}
	}
	prev := strings.TrimSpace(previous)
	if prev == "" {
		prev = "(none)"
	}

	resp, err := c.llm.Generate(ctx, fmt.Sprintf(cleanPrompt, prev, raw), cleanMaxTokens)
	if err != nil {
		c.logger.Warn("clean inference failed, using raw text", "error", err)
		return Cleaned{Text: raw}
	}
	out := ParseCleaned(resp)
	if out.Text == "" && !strings.Contains(strings.ToUpper(resp), "TEXT:") {
		c.logger.Warn("clean response missing TEXT line, using raw text")
		out.Text = raw
	}
	if previous == "" {
		out.Continuation = false
	}
	return out
}

// ParseCleaned reads the CONTINUATION and TEXT lines. TEXT may span the
// remaining lines of the response.
func ParseCleaned(resp string) Cleaned {
	var out Cleaned
	lines := strings.Split(resp, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "CONTINUATION":
			v := strings.ToLower(strings.TrimSpace(value))
			out.Continuation = v == "yes" || v == "true"
		case "TEXT":
			rest := append([]string{value}, lines[i+1:]...)
			text := strings.TrimSpace(strings.Join(rest, "\n"))
			if strings.EqualFold(text, "NONE") {
				text = ""
			}
			out.Text = text
			return out
		}
	}
	return out
}
