package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/paulmach/orb"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockEngine implements output.EarthEngine for testing.
type mockEngine struct {
	mu sync.Mutex

	// results maps the function name of the evaluated root to a JSON result
	results    map[string]string
	computeFn  func(n *expr.Node) (interface{}, error)
	computeErr error

	url    string
	urlErr error

	exportTask *domain.Task
	exportErr  error
	statuses   []*domain.Task
	statusErr  error

	computed    []*expr.Node
	downloads   []expr.Image
	downloadOps []domain.DownloadOptions
	exports     []domain.ExportRequest
	statusCalls int
}

func (m *mockEngine) Compute(_ context.Context, e expr.Expression, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := e.Node()
	m.computed = append(m.computed, n)

	if m.computeErr != nil {
		return m.computeErr
	}

	if m.computeFn != nil {
		v, err := m.computeFn(n)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, out)
	}

	res, ok := m.results[n.Func()]
	if !ok {
		return &domain.EvaluationError{Operation: "compute", StatusCode: 400, Message: "no result for " + n.Func()}
	}
	return json.Unmarshal([]byte(res), out)
}

func (m *mockEngine) DownloadURL(_ context.Context, img expr.Image, opts domain.DownloadOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.downloads = append(m.downloads, img)
	m.downloadOps = append(m.downloadOps, opts)
	if m.urlErr != nil {
		return "", m.urlErr
	}
	return m.url, nil
}

func (m *mockEngine) StartExport(_ context.Context, _ expr.Image, req domain.ExportRequest) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exports = append(m.exports, req)
	if m.exportErr != nil {
		return nil, m.exportErr
	}
	return m.exportTask, nil
}

func (m *mockEngine) TaskStatus(_ context.Context, _ string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErr != nil {
		return nil, m.statusErr
	}
	idx := m.statusCalls
	if idx >= len(m.statuses) {
		idx = len(m.statuses) - 1
	}
	m.statusCalls++
	return m.statuses[idx], nil
}

// mockFetcher implements output.Fetcher for testing.
type mockFetcher struct {
	mu      sync.Mutex
	content []byte
	err     error
	urls    []string
}

func (m *mockFetcher) Fetch(_ context.Context, url, dest string) (int64, error) {
	m.mu.Lock()
	m.urls = append(m.urls, url)
	m.mu.Unlock()

	if m.err != nil {
		return 0, m.err
	}
	if err := os.WriteFile(dest, m.content, 0600); err != nil {
		return 0, err
	}
	return int64(len(m.content)), nil
}

// mockRaster implements output.RasterMetadata for testing.
type mockRaster struct {
	mu      sync.Mutex
	names   map[string][]string
	nodata  map[string]float64
	nameErr error
}

func newMockRaster() *mockRaster {
	return &mockRaster{names: make(map[string][]string), nodata: make(map[string]float64)}
}

func (m *mockRaster) SetBandNames(path string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameErr != nil {
		return m.nameErr
	}
	m.names[path] = names
	return nil
}

func (m *mockRaster) SetNoData(path string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodata[path] = value
	return nil
}

func (m *mockRaster) BandNames(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[path], nil
}

// mockReader implements output.VectorReader for testing.
type mockReader struct {
	features map[string][]domain.Feature
	err      error
	reads    int
}

func (m *mockReader) ReadFeatures(_ context.Context, path string) ([]domain.Feature, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	f, ok := m.features[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f, nil
}

func (m *mockReader) Supports(_ string) bool { return true }

// mockTransformer implements output.CoordinateTransformer by shifting
// coordinates, which is enough to see that a transformation happened.
type mockTransformer struct {
	calls int
}

func (m *mockTransformer) Transform(_ context.Context, g orb.Geometry, _, _ int) (orb.Geometry, error) {
	m.calls++
	switch v := g.(type) {
	case orb.Point:
		return orb.Point{v[0] / 1e5, v[1] / 1e5}, nil
	case orb.LineString:
		out := make(orb.LineString, len(v))
		for i, p := range v {
			out[i] = orb.Point{p[0] / 1e5, p[1] / 1e5}
		}
		return out, nil
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, r := range v {
			ring := make(orb.Ring, len(r))
			for j, p := range r {
				ring[j] = orb.Point{p[0] / 1e5, p[1] / 1e5}
			}
			out[i] = ring
		}
		return out, nil
	default:
		return nil, errors.New("unsupported geometry")
	}
}

func (m *mockTransformer) IsSupported(source, target int) bool {
	return source == 2193 && target == domain.SRIDWGS84
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	mu        sync.Mutex
	uploaded  map[string]string
	uploadErr error
}

func (m *mockStorage) Upload(_ context.Context, key, src string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	if m.uploaded == nil {
		m.uploaded = make(map[string]string)
	}
	m.uploaded[key] = src
	return nil
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	return nil, nil
}

func (m *mockStorage) GetReader(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.uploaded[key]
	return ok, nil
}

// mockLedger implements output.Ledger for testing.
type mockLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
}

func (m *mockLedger) Record(_ context.Context, entry domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockLedger) Recent(_ context.Context, limit int) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	return m.entries[:limit], nil
}

func (m *mockLedger) Close() error { return nil }

// mockMetrics records counters for assertions.
type mockMetrics struct {
	output.NoOpMetrics
	mu        sync.Mutex
	downloads map[bool]int
	tasks     map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{downloads: make(map[bool]int), tasks: make(map[string]int)}
}

func (m *mockMetrics) IncDownloads(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[success]++
}

func (m *mockMetrics) IncTasks(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[state]++
}
