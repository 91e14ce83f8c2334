package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

// Manifest is a batch of downloads read from YAML.
type Manifest struct {
	Region      string     `yaml:"region"`      // Default region file
	Folder      string     `yaml:"folder"`      // Default output folder
	CRS         string     `yaml:"crs"`         // Default output CRS
	Scale       float64    `yaml:"scale"`       // Default pixel size
	Concurrency int        `yaml:"concurrency"` // Parallel jobs, 0 uses the runner default
	Jobs        []BatchJob `yaml:"jobs"`
}

// BatchJob is one download of a manifest.
type BatchJob struct {
	Name               string   `yaml:"name"`
	Sensor             string   `yaml:"sensor"`
	Year               int      `yaml:"year"`
	CloudCover         *float64 `yaml:"cloud_cover"`
	SurfaceReflectance *bool    `yaml:"surface_reflectance"`
	ScaleFactors       bool     `yaml:"scale_factors"`
	Mask               string   `yaml:"mask"`
	BestScene          bool     `yaml:"best_scene"`
	CloudBands         bool     `yaml:"cloud_bands"`
	Composite          string   `yaml:"composite"`
	Indices            []string `yaml:"indices"`
	Region             string   `yaml:"region"`
	Folder             string   `yaml:"folder"`
	CRS                string   `yaml:"crs"`
	Scale              float64  `yaml:"scale"`
	NoData             *float64 `yaml:"nodata"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	// Relative region paths are resolved against the manifest directory.
	base := filepath.Dir(path)
	m.Region = resolvePath(base, m.Region)
	for i := range m.Jobs {
		m.Jobs[i].Region = resolvePath(base, m.Jobs[i].Region)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks that every job can be turned into a request.
func (m *Manifest) Validate() error {
	if len(m.Jobs) == 0 {
		return &domain.ValidationError{Field: "jobs", Value: 0, Constraint: "> 0", Message: "manifest has no jobs"}
	}
	names := make(map[string]bool, len(m.Jobs))
	for i, job := range m.Jobs {
		if job.Name == "" {
			return &domain.ValidationError{Field: fmt.Sprintf("jobs[%d].name", i), Constraint: "non-empty", Message: "job name is required"}
		}
		if names[job.Name] {
			return &domain.ValidationError{Field: fmt.Sprintf("jobs[%d].name", i), Value: job.Name, Constraint: "unique", Message: "duplicate job name"}
		}
		names[job.Name] = true

		if job.Region == "" && m.Region == "" {
			return &domain.ValidationError{Field: fmt.Sprintf("jobs[%d].region", i), Constraint: "non-empty", Message: "no region for job " + job.Name}
		}
		if _, err := domain.ParseComposite(job.Composite); err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
		if _, err := domain.ParseMaskMethod(job.Mask); err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
	}
	return nil
}

// requests converts a job into product and download requests using the
// manifest defaults.
func (m *Manifest) requests(job BatchJob) (domain.ProductRequest, domain.DownloadRequest, error) {
	composite, err := domain.ParseComposite(job.Composite)
	if err != nil {
		return domain.ProductRequest{}, domain.DownloadRequest{}, err
	}

	sr := true
	if job.SurfaceReflectance != nil {
		sr = *job.SurfaceReflectance
	}

	product := domain.ProductRequest{
		Collection: domain.CollectionRequest{
			Year:               job.Year,
			Sensor:             domain.Sensor(job.Sensor),
			CloudCover:         job.CloudCover,
			SurfaceReflectance: sr,
			ScaleFactors:       job.ScaleFactors,
			Mask:               domain.MaskMethod(job.Mask),
		},
		BestScene:  job.BestScene,
		CloudBands: job.CloudBands,
		Composite:  composite,
		Indices:    job.Indices,
	}

	dl := domain.DownloadRequest{
		Folder: firstNonEmpty(job.Folder, m.Folder),
		Name:   job.Name,
		CRS:    firstNonEmpty(job.CRS, m.CRS, "EPSG:4326"),
		Scale:  job.Scale,
		Format: domain.FormatGeoTIFF,
	}
	if dl.Scale == 0 {
		dl.Scale = m.Scale
	}

	return product, dl, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// JobResult is the outcome of one batch job.
type JobResult struct {
	Name   string
	Result *domain.DownloadResult
	Err    error
}

// BatchRunner runs manifest jobs with bounded concurrency. A failing job
// does not stop the others.
type BatchRunner struct {
	service     *SceneService
	metrics     output.MetricsCollector
	logger      *slog.Logger
	concurrency int

	regionMu sync.Mutex
	regions  map[string]expr.FeatureCollection
}

// NewBatchRunner creates a new batch runner.
func NewBatchRunner(service *SceneService, metrics output.MetricsCollector, logger *slog.Logger, concurrency int) *BatchRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &BatchRunner{
		service:     service,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		regions:     make(map[string]expr.FeatureCollection),
	}
}

// Run executes every job of the manifest. Results are returned in manifest
// order; the error joins all job failures.
func (r *BatchRunner) Run(ctx context.Context, m *Manifest) ([]JobResult, error) {
	limit := r.concurrency
	if m.Concurrency > 0 {
		limit = m.Concurrency
	}

	results := make([]JobResult, len(m.Jobs))
	var running atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	r.logger.Info("starting batch", "jobs", len(m.Jobs), "concurrency", limit)

	for i, job := range m.Jobs {
		g.Go(func() error {
			r.metrics.SetJobsRunning(int(running.Add(1)))
			defer func() { r.metrics.SetJobsRunning(int(running.Add(-1))) }()

			res, err := r.runJob(gctx, m, job)
			results[i] = JobResult{Name: job.Name, Result: res, Err: err}
			if err != nil {
				r.logger.Error("batch job failed", "job", job.Name, "error", err)
			}
			// Only cancellation aborts the remaining jobs.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", res.Name, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (r *BatchRunner) runJob(ctx context.Context, m *Manifest, job BatchJob) (*domain.DownloadResult, error) {
	product, dl, err := m.requests(job)
	if err != nil {
		return nil, err
	}

	region, err := r.region(ctx, firstNonEmpty(job.Region, m.Region))
	if err != nil {
		return nil, err
	}

	res, err := r.service.DownloadRegion(ctx, region, product, dl)
	if err != nil {
		return nil, err
	}

	if job.NoData != nil && res.Written {
		if err := r.service.Exporter().SetNoData(res.Path, *job.NoData); err != nil {
			return res, fmt.Errorf("setting no-data: %w", err)
		}
	}
	return res, nil
}

// region converts each region file once per runner.
func (r *BatchRunner) region(ctx context.Context, path string) (expr.FeatureCollection, error) {
	r.regionMu.Lock()
	defer r.regionMu.Unlock()

	if fc, ok := r.regions[path]; ok {
		return fc, nil
	}

	fc, err := r.service.Regions().RegionFromFile(ctx, path)
	if err != nil {
		return expr.FeatureCollection{}, err
	}
	r.regions[path] = fc
	return fc, nil
}
