package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

// DefaultPollInterval is the sleep between export task status checks.
const DefaultPollInterval = time.Minute

// RasterExporter downloads prepared images to local disk, patches raster
// metadata and runs batch export tasks.
type RasterExporter struct {
	engine       output.EarthEngine
	fetcher      output.Fetcher
	raster       output.RasterMetadata
	storage      output.ObjectStorage
	ledger       output.Ledger
	metrics      output.MetricsCollector
	logger       *slog.Logger
	pollInterval time.Duration
}

// ExporterConfig holds configuration for the raster exporter.
type ExporterConfig struct {
	PollInterval time.Duration
	Storage      output.ObjectStorage // optional, downloads are published here
	Ledger       output.Ledger        // optional
}

// NewRasterExporter creates a new raster exporter.
func NewRasterExporter(
	engine output.EarthEngine,
	fetcher output.Fetcher,
	raster output.RasterMetadata,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg ExporterConfig,
) *RasterExporter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Ledger == nil {
		cfg.Ledger = &output.NoOpLedger{}
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &RasterExporter{
		engine:       engine,
		fetcher:      fetcher,
		raster:       raster,
		storage:      cfg.Storage,
		ledger:       cfg.Ledger,
		metrics:      metrics,
		logger:       logger,
		pollInterval: cfg.PollInterval,
	}
}

// Download writes img, clipped to region, to <folder>/<name> and stamps
// the band names on the file.
//
// A failure to obtain the download URL or a non-2xx response is logged and
// reported through DownloadResult.Failure with a nil error; no file is left
// at the destination. Failures evaluating the band list, writing metadata
// or publishing are returned as errors.
func (e *RasterExporter) Download(ctx context.Context, img expr.Image, region expr.Expression, req domain.DownloadRequest) (*domain.DownloadResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Format == "" {
		req.Format = domain.FormatGeoTIFF
	}

	start := time.Now()
	path := req.Path()
	result := &domain.DownloadResult{Path: path}

	var bands []string
	if err := e.engine.Compute(ctx, img.BandNames(), &bands); err != nil {
		e.metrics.IncRemoteCalls("band_names", false)
		return nil, fmt.Errorf("reading band names: %w", err)
	}
	e.metrics.IncRemoteCalls("band_names", true)
	result.Bands = bands

	if region != nil {
		img = img.Clip(region)
	}

	url, err := e.engine.DownloadURL(ctx, img, domain.DownloadOptions{
		Bands:  bands,
		CRS:    req.CRS,
		Scale:  req.Scale,
		Format: req.Format,
	})
	e.metrics.IncRemoteCalls("download_url", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.skipped(ctx, result, &domain.DownloadError{Name: req.Name, Err: err}, start), nil
	}

	n, err := e.fetcher.Fetch(ctx, url, path)
	if err != nil {
		var dlErr *domain.DownloadError
		if errors.As(err, &dlErr) && ctx.Err() == nil {
			if dlErr.Name == "" {
				dlErr.Name = req.Name
			}
			return e.skipped(ctx, result, dlErr, start), nil
		}
		e.metrics.IncDownloads(false)
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}

	if err := e.raster.SetBandNames(path, bands); err != nil {
		return nil, fmt.Errorf("setting band names on %s: %w", path, err)
	}

	result.Bytes = n
	result.Written = true
	result.Elapsed = time.Since(start)

	e.metrics.IncDownloads(true)
	e.metrics.AddDownloadBytes(n)

	if err := e.publish(ctx, req.Name, path); err != nil {
		return result, err
	}

	e.logger.Info("download completed",
		"path", path,
		"bands", len(bands),
		"bytes", n,
		"duration_ms", result.Elapsed.Milliseconds(),
	)
	e.record(ctx, domain.LedgerEntry{
		Kind:  domain.LedgerDownload,
		Name:  path,
		State: "written",
		Bands: bands,
	})

	return result, nil
}

func (e *RasterExporter) skipped(ctx context.Context, result *domain.DownloadResult, failure *domain.DownloadError, start time.Time) *domain.DownloadResult {
	e.logger.Error("error occurred during download",
		"path", result.Path,
		"status", failure.StatusCode,
		"error", failure.Error(),
	)
	e.metrics.IncDownloads(false)

	result.Failure = failure
	result.Elapsed = time.Since(start)

	e.record(ctx, domain.LedgerEntry{
		Kind:    domain.LedgerDownload,
		Name:    result.Path,
		State:   "skipped",
		Message: failure.Error(),
		Bands:   result.Bands,
	})
	return result
}

func (e *RasterExporter) publish(ctx context.Context, key, path string) error {
	if e.storage == nil {
		return nil
	}

	start := time.Now()
	err := e.storage.Upload(ctx, key, path)
	e.metrics.IncStorageOperations("upload", err == nil)
	e.metrics.ObserveStorageDuration("upload", time.Since(start))
	if err != nil {
		return &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}

	e.logger.Debug("published raster", "key", key)
	return nil
}

// SetBandNames writes band descriptions on a local raster.
func (e *RasterExporter) SetBandNames(path string, names []string) error {
	return e.raster.SetBandNames(path, names)
}

// SetNoData sets the no-data value of every band of a local raster.
func (e *RasterExporter) SetNoData(path string, value float64) error {
	return e.raster.SetNoData(path, value)
}

// StartExport starts a batch export of img, clipped to region.
func (e *RasterExporter) StartExport(ctx context.Context, img expr.Image, region expr.Expression, req domain.ExportRequest) (*domain.Task, error) {
	if req.Format == "" {
		req.Format = domain.FormatGeoTIFF
	}
	if region != nil {
		img = img.Clip(region)
	}

	task, err := e.engine.StartExport(ctx, img, req)
	e.metrics.IncRemoteCalls("export", err == nil)
	if err != nil {
		return nil, fmt.Errorf("starting export %s: %w", req.Description, err)
	}

	e.logger.Info("export task started", "task", task.Name, "description", req.Description)
	e.record(ctx, domain.LedgerEntry{
		Kind:  domain.LedgerTask,
		Name:  task.Name,
		State: string(task.State),
	})
	return task, nil
}

// RunTask polls an export task every poll interval until it leaves the
// active states. It returns domain.ErrTaskFailed if the task failed or was
// cancelled. Only ctx cancellation stops the loop early.
func (e *RasterExporter) RunTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	current := task
	for current.State.Active() {
		e.logger.Info("task status",
			"task", current.Name,
			"state", current.State,
			"progress", current.Progress,
		)

		if err := sleepContext(ctx, e.pollInterval); err != nil {
			return current, err
		}

		next, err := e.engine.TaskStatus(ctx, current.Name)
		e.metrics.IncRemoteCalls("task_status", err == nil)
		if err != nil {
			return current, fmt.Errorf("polling task %s: %w", current.Name, err)
		}
		current = next
	}

	e.metrics.IncTasks(string(current.State))
	e.record(ctx, domain.LedgerEntry{
		Kind:    domain.LedgerTask,
		Name:    current.Name,
		State:   string(current.State),
		Message: current.Error,
	})

	if current.State != domain.TaskSucceeded {
		e.logger.Error("task ended", "task", current.Name, "state", current.State, "error", current.Error)
		return current, fmt.Errorf("task %s %s: %s: %w", current.Name, current.State, current.Error, domain.ErrTaskFailed)
	}

	e.logger.Info("task completed", "task", current.Name)
	return current, nil
}

func (e *RasterExporter) record(ctx context.Context, entry domain.LedgerEntry) {
	now := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := e.ledger.Record(ctx, entry); err != nil {
		e.logger.Warn("failed to record ledger entry", "name", entry.Name, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
