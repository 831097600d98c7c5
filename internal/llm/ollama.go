package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when the inference backend cannot be reached.
var ErrUnavailable = errors.New("inference backend unavailable")

// Gateway is the stateless text-generation contract every stage depends on.
// No conversation memory is carried between calls.
type Gateway interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsAvailable(ctx context.Context) bool
}

// OllamaClient generates text through Ollama's /api/generate endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	timeout time.Duration
	logger  *slog.Logger
	client  *http.Client
}

// NewOllamaClient creates a new generation client. timeout bounds each call.
func NewOllamaClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		logger:  logger,
		client:  &http.Client{},
	}
}

// generateRequest is the request body for Ollama /api/generate.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// generateResponse is the response body from Ollama /api/generate.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs one completion. A call that exceeds the client timeout is
// cancelled and reported as an ordinary error.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{NumPredict: maxTokens, Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Response == "" {
		return "", fmt.Errorf("empty response from ollama")
	}

	c.logger.Debug("inference complete",
		"model", c.model,
		"prompt_chars", len(prompt),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return strings.TrimSpace(out.Response), nil
}

// IsAvailable checks whether Ollama answers on /api/tags.
func (c *OllamaClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Check returns ErrUnavailable when the backend does not respond.
func Check(ctx context.Context, g Gateway) error {
	if !g.IsAvailable(ctx) {
		return ErrUnavailable
	}
	return nil
}
