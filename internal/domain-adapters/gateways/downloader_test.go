package gateways

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTextServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/COPYRIGHT":
			_, _ = w.Write([]byte("musl as a whole is licensed under the following standard MIT license:\n"))
		case "/empty":
			_, _ = w.Write([]byte("  \n"))
		case "/limit":
			_, _ = w.Write(bytes.Repeat([]byte("a"), maxTextSize))
		case "/oversize":
			_, _ = w.Write(bytes.Repeat([]byte("a"), maxTextSize+1))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestDownloader_FetchText(t *testing.T) {
	server := newTextServer()
	defer server.Close()

	d := NewDownloader()

	text, err := d.FetchText(context.Background(), server.URL+"/COPYRIGHT")
	if err != nil {
		t.Fatalf("FetchText() error = %v", err)
	}
	if text == "" {
		t.Error("FetchText() returned empty text")
	}

	tests := []struct {
		name string
		path string
	}{
		{"not found", "/missing"},
		{"empty body", "/empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.FetchText(context.Background(), server.URL+tt.path); err == nil {
				t.Errorf("FetchText(%s) expected error", tt.path)
			}
		})
	}
}

func TestDownloader_SizeLimit(t *testing.T) {
	server := newTextServer()
	defer server.Close()
	d := NewDownloader()

	text, err := d.FetchText(context.Background(), server.URL+"/limit")
	if err != nil {
		t.Fatalf("FetchText() at the limit error = %v", err)
	}
	if len(text) != maxTextSize {
		t.Errorf("FetchText() = %d bytes, want %d", len(text), maxTextSize)
	}

	if _, err := d.FetchText(context.Background(), server.URL+"/oversize"); err == nil {
		t.Error("FetchText() expected error for oversized response, got truncated text")
	}

	out := filepath.Join(t.TempDir(), "oversize")
	if err := d.DownloadFile(context.Background(), server.URL+"/oversize", out); err == nil {
		t.Error("DownloadFile() expected error for oversized response")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("truncated download left at %s", out)
	}
}

func TestDownloader_FetchText_Unreachable(t *testing.T) {
	server := newTextServer()
	url := server.URL + "/COPYRIGHT"
	server.Close()

	if _, err := NewDownloader().FetchText(context.Background(), url); err == nil {
		t.Error("FetchText() expected error for unreachable host")
	}
}

func TestDownloader_DownloadFile(t *testing.T) {
	server := newTextServer()
	defer server.Close()

	out := filepath.Join(t.TempDir(), "nested", "COPYRIGHT")
	if err := NewDownloader().DownloadFile(context.Background(), server.URL+"/COPYRIGHT", out); err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}

	//nolint:gosec // G304: test output file
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if len(data) == 0 {
		t.Error("downloaded file is empty")
	}

	if err := NewDownloader().DownloadFile(context.Background(), server.URL+"/missing", out); err == nil {
		t.Error("DownloadFile() expected error for 404")
	}
}
