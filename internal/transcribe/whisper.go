package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Gateway turns recorded audio into text. Implementations do not retry.
type Gateway interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// WhisperClient posts audio to an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type WhisperClient struct {
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	logger  *slog.Logger
	client  *http.Client
}

func NewWhisperClient(url, apiKey, model string, timeout time.Duration, logger *slog.Logger) *WhisperClient {
	return &WhisperClient{
		url:     strings.TrimRight(url, "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		logger:  logger,
		client:  &http.Client{},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one chunk and returns the recognized text.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if filename == "" {
		filename = "chunk.wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write format field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create file field: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}

	c.logger.Debug("transcription complete",
		"bytes", len(audio),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return strings.TrimSpace(out.Text), nil
}
