package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/scenekit/internal/domain"
)

func TestHTTPFetcherFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("tiff"))
		case "/missing":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Image not found.","status":"NOT_FOUND"}}`))
		default:
			http.Error(w, "Pixel grid dimensions too large", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	dir := t.TempDir()

	tests := []struct {
		name        string
		path        string
		wantBytes   int64
		wantStatus  int
		wantMessage string
	}{
		{
			name:      "success",
			path:      "/ok",
			wantBytes: 4,
		},
		{
			name:        "json error body",
			path:        "/missing",
			wantStatus:  http.StatusNotFound,
			wantMessage: "Image not found.",
		},
		{
			name:        "plain error body",
			path:        "/large",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Pixel grid dimensions too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var progress bytes.Buffer
			f := NewHTTPFetcher(Config{Progress: &progress, ChunkSize: 2})
			folder := filepath.Join(dir, tt.name)
			if err := os.Mkdir(folder, 0o750); err != nil {
				t.Fatal(err)
			}
			dest := filepath.Join(folder, "scene.tif")

			n, err := f.Fetch(context.Background(), server.URL+tt.path, dest)

			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("Fetch() error = %v", err)
				}
				if n != tt.wantBytes {
					t.Errorf("Fetch() = %d bytes, want %d", n, tt.wantBytes)
				}
				data, err := os.ReadFile(dest)
				if err != nil || string(data) != "tiff" {
					t.Errorf("file content = %q, %v", data, err)
				}
				return
			}

			var dlErr *domain.DownloadError
			if !errors.As(err, &dlErr) {
				t.Fatalf("Fetch() error = %v, want *DownloadError", err)
			}
			if dlErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", dlErr.StatusCode, tt.wantStatus)
			}
			if dlErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", dlErr.Message, tt.wantMessage)
			}
			if dlErr.Name != "scene.tif" {
				t.Errorf("Name = %q, want scene.tif", dlErr.Name)
			}
			if !errors.Is(err, domain.ErrDownloadFailed) {
				t.Errorf("error does not wrap ErrDownloadFailed")
			}
			if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
				t.Errorf("file exists after failed download")
			}
		})
	}
}

func TestHTTPFetcherUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPFetcher(Config{}).Fetch(context.Background(), url, filepath.Join(t.TempDir(), "a.tif"))
	var dlErr *domain.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Fetch() error = %v, want *DownloadError", err)
	}
	if dlErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", dlErr.StatusCode)
	}
}

func TestHTTPFetcherCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tiff"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher(Config{}).Fetch(ctx, server.URL, filepath.Join(t.TempDir(), "a.tif"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestHTTPFetcherDiskError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tiff"))
	}))
	defer server.Close()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewHTTPFetcher(Config{}).Fetch(context.Background(), server.URL, filepath.Join(blocker, "a.tif"))
	if err == nil {
		t.Fatal("Fetch() error = nil, want disk error")
	}
	var dlErr *domain.DownloadError
	if errors.As(err, &dlErr) {
		t.Errorf("disk error reported as download failure: %v", err)
	}
}

func TestHTTPFetcherMissingFolder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tiff"))
	}))
	defer server.Close()

	folder := filepath.Join(t.TempDir(), "exports", "2021")

	_, err := NewHTTPFetcher(Config{}).Fetch(context.Background(), server.URL, filepath.Join(folder, "a.tif"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Fetch() error = %v, want os.ErrNotExist", err)
	}
	var dlErr *domain.DownloadError
	if errors.As(err, &dlErr) {
		t.Errorf("missing folder reported as download failure: %v", err)
	}
	if _, statErr := os.Stat(folder); !os.IsNotExist(statErr) {
		t.Errorf("Fetch() created %s", folder)
	}
}

// chunkRecorder records the size of every write it receives. It also
// implements io.ReaderFrom, like *os.File does.
type chunkRecorder struct {
	sizes    []int
	readFrom bool
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.sizes = append(c.sizes, len(p))
	return len(p), nil
}

func (c *chunkRecorder) ReadFrom(r io.Reader) (int64, error) {
	c.readFrom = true
	return io.Copy(io.Discard, r)
}

func TestHTTPFetcherCopyChunked(t *testing.T) {
	f := NewHTTPFetcher(Config{ChunkSize: 3})
	rec := &chunkRecorder{}

	n, err := f.copyChunked(rec, bytes.NewReader(bytes.Repeat([]byte("x"), 10)))
	if err != nil {
		t.Fatalf("copyChunked() error = %v", err)
	}
	if n != 10 {
		t.Errorf("copyChunked() = %d bytes, want 10", n)
	}
	if rec.readFrom {
		t.Error("copyChunked() used ReadFrom, bypassing the chunk buffer")
	}
	if len(rec.sizes) != 4 {
		t.Errorf("writes = %v, want 4 chunks", rec.sizes)
	}
	for _, size := range rec.sizes {
		if size > 3 {
			t.Errorf("write of %d bytes exceeds chunk size 3", size)
		}
	}
}
