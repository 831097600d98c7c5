package transcribe

import (
	"context"
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

func TestWhisperClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("unexpected model %q", r.FormValue("model"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "RIFF" || hdr.Filename != "chunk-3.wav" {
				t.Errorf("unexpected upload %q %q", data, hdr.Filename)
			}
		}
		w.Write([]byte(`{"text":" Book flights to Bangalore next week. "}`))
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL, "secret", "whisper-1", time.Second, testLogger())
	text, err := c.Transcribe(context.Background(), []byte("RIFF"), "chunk-3.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Book flights to Bangalore next week." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestWhisperClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL, "", "whisper-1", time.Second, testLogger())
	if _, err := c.Transcribe(context.Background(), []byte("x"), ""); err == nil {
		t.Fatal("expected error")
	}
}
