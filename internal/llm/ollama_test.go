package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOllamaClient_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(generateResponse{Response: "  relevant|plans|todo|HIGH|ship it \n", Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL+"/", "qwen2.5:3b", 5*time.Second, testLogger())
	out, err := c.Generate(context.Background(), "hello", 256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "relevant|plans|todo|HIGH|ship it" {
		t.Fatalf("expected trimmed response, got %q", out)
	}
	if got.Model != "qwen2.5:3b" || got.Stream || got.Options.NumPredict != 256 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOllamaClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", 50*time.Millisecond, testLogger())
	_, err := c.Generate(context.Background(), "hello", 10)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOllamaClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", time.Second, testLogger())
	if _, err := c.Generate(context.Background(), "hello", 10); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestOllamaClient_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	c := NewOllamaClient(srv.URL, "m", time.Second, testLogger())
	if !c.IsAvailable(context.Background()) {
		t.Fatal("expected available")
	}
	if err := Check(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv.Close()
	if c.IsAvailable(context.Background()) {
		t.Fatal("expected unavailable after server close")
	}
	if err := Check(context.Background(), c); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
