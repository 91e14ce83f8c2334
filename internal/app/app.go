// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jobrunner/scenekit/internal/adapters/download"
	"github.com/jobrunner/scenekit/internal/adapters/earthengine"
	httpAdapter "github.com/jobrunner/scenekit/internal/adapters/http"
	"github.com/jobrunner/scenekit/internal/adapters/ledger"
	"github.com/jobrunner/scenekit/internal/adapters/metrics"
	"github.com/jobrunner/scenekit/internal/adapters/raster"
	"github.com/jobrunner/scenekit/internal/adapters/storage"
	"github.com/jobrunner/scenekit/internal/adapters/vector"
	"github.com/jobrunner/scenekit/internal/adapters/watcher"
	"github.com/jobrunner/scenekit/internal/application"
	"github.com/jobrunner/scenekit/internal/config"
	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Engine        *earthengine.Client
	Storage       output.ObjectStorage
	Ledger        *ledger.SQLiteLedger
	Metrics       *metrics.Collector
	Reader        *vector.MultiReader
	Regions       *application.GeometryAdapter
	Builder       *application.CollectionBuilder
	Exporter      *application.RasterExporter
	Scenes        *application.SceneService
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	Watcher       *watcher.Watcher
	WatchService  *application.RegionWatchService
}

// Options tune the wiring for a single command.
type Options struct {
	Progress io.Writer // Download progress output, nil disables the bar
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled || cfg.Metrics.Textfile != "" {
		app.Metrics = metrics.NewCollector("scenekit")
		metricsCollector = app.Metrics
	}

	// Initialize remote service client
	engine, err := earthengine.New(ctx,
		earthengine.Config{
			BaseURL: cfg.EarthEngine.BaseURL,
			Project: cfg.EarthEngine.Project,
			Timeout: cfg.EarthEngine.Timeout,
		},
		earthengine.AuthConfig{
			Type:            cfg.EarthEngine.Auth.Type,
			CredentialsFile: cfg.EarthEngine.Auth.CredentialsFile,
			ClientID:        cfg.EarthEngine.Auth.ClientID,
			ClientSecret:    cfg.EarthEngine.Auth.ClientSecret,
			TokenURL:        cfg.EarthEngine.Auth.TokenURL,
			Scopes:          cfg.EarthEngine.Auth.Scopes,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("initializing remote client: %w", err)
	}
	app.Engine = engine

	// Initialize storage adapter
	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	// Initialize ledger
	var led output.Ledger
	if cfg.Ledger.Enabled {
		app.Ledger, err = ledger.Open(ctx, cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		led = app.Ledger
	}

	// Region readers and reprojection
	app.Reader = vector.NewMultiReader(
		vector.NewGeoPackageReader(),
		vector.NewGeoJSONReader(),
		vector.NewOGRReader(),
	)
	app.Regions = application.NewGeometryAdapter(app.Reader, vector.NewTransformer(), logger)

	// Collection building and export
	app.Builder = application.NewCollectionBuilder(
		domain.DefaultCatalog(),
		application.NewCloudShadowMasker(cfg.MaskParams()),
		engine,
		metricsCollector,
		logger,
	)

	fetcher := download.NewHTTPFetcher(download.Config{
		Timeout:   cfg.Export.Timeout,
		ChunkSize: cfg.Export.ChunkSize,
		Progress:  opts.Progress,
	})

	app.Exporter = application.NewRasterExporter(
		engine,
		fetcher,
		raster.NewGDAL(),
		metricsCollector,
		logger,
		application.ExporterConfig{
			PollInterval: cfg.Export.PollInterval,
			Storage:      store,
			Ledger:       led,
		},
	)

	app.Scenes = application.NewSceneService(
		domain.DefaultCatalog(),
		app.Regions,
		app.Builder,
		app.Exporter,
		logger,
	)

	app.HealthService = application.NewHealthService(domain.DefaultCatalog(), engine, store)

	return app, nil
}

// DownloadDefaults returns the configured output folder, grid and format.
func (a *App) DownloadDefaults() domain.DownloadRequest {
	return domain.DownloadRequest{
		Folder: a.Config.Export.Folder,
		CRS:    a.Config.Export.CRS,
		Scale:  a.Config.Export.Scale,
		Format: a.Config.Export.Format,
	}
}

// MetricsCollector returns the collector or a no-op implementation.
func (a *App) MetricsCollector() output.MetricsCollector {
	if a.Metrics == nil {
		return &output.NoOpMetrics{}
	}
	return a.Metrics
}

// NewBatchRunner creates a batch runner with the configured concurrency.
func (a *App) NewBatchRunner() *application.BatchRunner {
	return application.NewBatchRunner(a.Scenes, a.MetricsCollector(), a.Logger, a.Config.Batch.Concurrency)
}

// EnableServer initializes the HTTP server.
func (a *App) EnableServer() {
	opts := httpAdapter.Options{Downloads: a.DownloadDefaults()}
	if a.Metrics != nil && a.Config.Metrics.Enabled {
		opts.Metrics = a.Metrics.Handler()
		opts.MetricsPath = a.Config.Metrics.Path
		opts.Middleware = a.Metrics.Middleware
	}

	a.HTTPServer = httpAdapter.NewServer(
		a.Config.Server,
		a.Scenes,
		a.HealthService,
		a.Logger,
		opts,
	)
}

// EnableWatch initializes the region directory watcher. Every region file
// that appears or changes is turned into one product download.
func (a *App) EnableWatch(product domain.ProductRequest) error {
	a.WatchService = application.NewRegionWatchService(
		a.Scenes,
		product,
		a.DownloadDefaults(),
		a.Config.Watch.Cooldown,
		a.Logger,
	)

	w, err := watcher.New(
		watcher.Config{
			Dirs:   a.Config.Watch.Paths,
			Settle: a.Config.Watch.Debounce,
		},
		a.handleRegionChange,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("initializing watcher: %w", err)
	}
	a.Watcher = w
	return nil
}

// Start starts the watcher and the HTTP server, whichever are enabled.
// It blocks while the HTTP server runs.
func (a *App) Start(ctx context.Context) error {
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}

	if a.HTTPServer != nil {
		return a.HTTPServer.Start()
	}

	<-ctx.Done()
	return nil
}

// Shutdown stops the watcher and the HTTP server. Close releases the rest.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	// Stop watcher
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	return nil
}

// Close releases the ledger and writes the metrics textfile when configured.
func (a *App) Close() error {
	var errs []error
	if a.Metrics != nil && a.Config.Metrics.Textfile != "" {
		if err := a.Metrics.WriteToTextfile(a.Config.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}

// handleRegionChange downloads a product for updated region files and
// forgets the cooldown of removed ones.
func (a *App) handleRegionChange(ctx context.Context, change watcher.Change) error {
	switch change.Kind {
	case watcher.RegionUpdated:
		res, err := a.WatchService.Process(ctx, change.Region)
		if errors.Is(err, application.ErrRateLimited) {
			a.Logger.Debug("region recently processed", "path", change.Region)
			return nil
		}
		if err != nil {
			return err
		}
		a.Logger.Info("region processed",
			"path", change.Region,
			"output", res.Result.Path,
			"written", res.Result.Written,
		)

	case watcher.RegionRemoved:
		a.WatchService.Forget(change.Region)
	}

	return nil
}

// initStorage initializes the storage adapter downloads are published to.
// Type none disables publishing.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch output.StorageType(cfg.Type) {
	case output.StorageTypeNone, "":
		return nil, nil

	case output.StorageTypeLocal:
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case output.StorageTypeS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case output.StorageTypeAzure:
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewLogger creates the process logger. With a log file configured, output
// goes to a rotated file instead of stderr.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}
