// Package download streams remote rasters to local files.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/jobrunner/scenekit/internal/domain"
)

// DefaultChunkSize is the copy buffer size for response bodies.
const DefaultChunkSize = 1 << 20

// Config holds fetcher configuration.
type Config struct {
	Timeout   time.Duration
	ChunkSize int       // Copy buffer size in bytes
	Progress  io.Writer // Progress bar output, nil disables the bar
}

// HTTPFetcher implements output.Fetcher over plain HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	chunkSize int
	progress  io.Writer
}

// NewHTTPFetcher creates a new fetcher.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		chunkSize: cfg.ChunkSize,
		progress:  cfg.Progress,
	}
}

// Fetch streams url to dest. Non-2xx responses and transport failures
// return a *domain.DownloadError and leave no file behind.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	name := filepath.Base(dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &domain.DownloadError{Name: name, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &domain.DownloadError{Name: name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &domain.DownloadError{
			Name:       name,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	// The destination folder must already exist.
	out, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return 0, err
	}

	var w io.Writer = out
	if f.progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(f.progress),
			progressbar.OptionSetDescription(name),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		w = io.MultiWriter(out, bar)
		defer func() { _ = bar.Finish() }()
	}

	n, copyErr := f.copyChunked(w, resp.Body)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(dest)
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if copyErr != nil && !isDiskError(copyErr) {
			return 0, &domain.DownloadError{Name: name, Err: copyErr}
		}
		return 0, err
	}

	return n, nil
}

// copyChunked copies src to dst through a chunkSize buffer. The wrappers
// hide ReadFrom and WriteTo so io.CopyBuffer never bypasses the buffer.
func (f *HTTPFetcher) copyChunked(dst io.Writer, src io.Reader) (int64, error) {
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, make([]byte, f.chunkSize))
}

// errorMessage extracts the message of a JSON error body, falling back
// to the trimmed body text.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func isDiskError(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}
