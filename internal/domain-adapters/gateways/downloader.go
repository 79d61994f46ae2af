package gateways

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxTextSize bounds license texts and installer scripts
const maxTextSize = 4 * 1024 * 1024

// Downloader fetches license texts and installer scripts over HTTPS
type Downloader struct {
	httpClient *http.Client
}

// NewDownloader creates a new downloader
func NewDownloader() *Downloader {
	return &Downloader{
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// FetchText downloads a text document. Non-200 responses and empty bodies
// are errors: a missing license text must never yield an empty entry.
func (d *Downloader) FetchText(ctx context.Context, url string) (string, error) {
	body, err := d.get(ctx, url)
	if err != nil {
		return "", err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxTextSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > maxTextSize {
		return "", fmt.Errorf("response from %s exceeds %d bytes", url, maxTextSize)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty response from %s", url)
	}
	return text, nil
}

// DownloadFile writes the document at url to outputPath
func (d *Downloader) DownloadFile(ctx context.Context, url, outputPath string) error {
	body, err := d.get(ctx, url)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	//nolint:gosec // G304: outputPath is constructed by caller
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(body, maxTextSize+1))
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if n > maxTextSize {
		//nolint:errcheck,gosec // G104: Best effort cleanup of the partial file
		os.Remove(outputPath)
		return fmt.Errorf("response from %s exceeds %d bytes", url, maxTextSize)
	}
	return nil
}

func (d *Downloader) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download of %s failed with status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}
