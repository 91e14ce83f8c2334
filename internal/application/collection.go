package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

// CollectionBuilder selects annual image collections and dispatches them
// to the masking pipeline of the sensor family.
type CollectionBuilder struct {
	catalog *domain.Catalog
	masker  *CloudShadowMasker
	engine  output.EarthEngine
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewCollectionBuilder creates a new collection builder. The engine is only
// used by operations that evaluate graphs.
func NewCollectionBuilder(
	catalog *domain.Catalog,
	masker *CloudShadowMasker,
	engine output.EarthEngine,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *CollectionBuilder {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &CollectionBuilder{
		catalog: catalog,
		masker:  masker,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}
}

// Filtered returns the collection filtered by bounds, date and optionally
// the cloud ceiling, without masking or renaming.
func (b *CollectionBuilder) Filtered(region expr.Expression, req domain.CollectionRequest) (expr.ImageCollection, domain.SensorSpec, domain.DateInterval, error) {
	if err := req.Validate(); err != nil {
		return expr.ImageCollection{}, domain.SensorSpec{}, domain.DateInterval{}, err
	}

	spec, err := b.catalog.LookupOptical(req.Sensor)
	if err != nil {
		return expr.ImageCollection{}, domain.SensorSpec{}, domain.DateInterval{}, err
	}

	interval := domain.AnnualInterval(spec, req.Year)
	return filterScenes(spec, region, interval, req), spec, interval, nil
}

func filterScenes(spec domain.SensorSpec, region expr.Expression, interval domain.DateInterval, req domain.CollectionRequest) expr.ImageCollection {
	coll := expr.LoadCollection(spec.Collection(req.SurfaceReflectance)).
		FilterBounds(region).
		FilterDate(interval.StartDate(), interval.EndDate())

	if req.CloudCover != nil {
		coll = coll.Filter(expr.LessThan(spec.CloudField, *req.CloudCover))
	}
	return coll
}

// Build returns the masked collection with bands renamed to the canonical
// output names of the sensor.
func (b *CollectionBuilder) Build(region expr.Expression, req domain.CollectionRequest) (expr.ImageCollection, error) {
	coll, spec, interval, err := b.Filtered(region, req)
	if err != nil {
		return expr.ImageCollection{}, err
	}

	coll, err = b.masker.MaskCollection(coll, spec, req.Mask, region, interval)
	if err != nil {
		return expr.ImageCollection{}, err
	}

	b.logger.Debug("built collection",
		"sensor", spec.ID,
		"year", req.Year,
		"interval", interval.String(),
		"mask", req.Mask,
		"surface_reflectance", req.SurfaceReflectance,
	)

	if req.ScaleFactors && req.SurfaceReflectance && spec.Family == domain.FamilyLandsat {
		coll = coll.Map(ApplyScaleFactors)
	}

	rename := RenameBands(spec.BandsFor(req.SurfaceReflectance), spec.OutputBands)
	return coll.Map(rename), nil
}

// Resolve builds the collection and enforces the join policy. With the
// error policy, Sentinel-2 scenes lacking cloud probability fail the call
// with domain.ErrUnjoinedScene.
func (b *CollectionBuilder) Resolve(ctx context.Context, region expr.Expression, req domain.CollectionRequest) (expr.ImageCollection, error) {
	coll, err := b.Build(region, req)
	if err != nil {
		return expr.ImageCollection{}, err
	}

	spec, _ := b.catalog.Lookup(req.Sensor)
	if spec.Family != domain.FamilySentinel2 || !req.Mask.NeedsCloudProbability() || b.masker.Params().JoinPolicy != domain.JoinError {
		return coll, nil
	}

	filtered, _, interval, err := b.Filtered(region, req)
	if err != nil {
		return expr.ImageCollection{}, err
	}

	var missing int
	if err := b.compute(ctx, "unjoined", b.masker.UnjoinedScenes(filtered, region, interval).Size(), &missing); err != nil {
		return expr.ImageCollection{}, fmt.Errorf("checking cloud probability join: %w", err)
	}
	if missing > 0 {
		return expr.ImageCollection{}, fmt.Errorf("%d scenes: %w", missing, domain.ErrUnjoinedScene)
	}

	return coll, nil
}

// BestScene returns the least cloudy top of atmosphere scene of the
// calendar year with bands renamed. No masking is applied, and the
// two-year window of sparse archives does not apply.
func (b *CollectionBuilder) BestScene(region expr.Expression, req domain.CollectionRequest) (expr.Image, error) {
	req.SurfaceReflectance = false
	if err := req.Validate(); err != nil {
		return expr.Image{}, err
	}

	spec, err := b.catalog.LookupOptical(req.Sensor)
	if err != nil {
		return expr.Image{}, err
	}

	coll := filterScenes(spec, region, domain.CalendarYear(req.Year), req)
	rename := RenameBands(spec.BandsFor(false), spec.OutputBands)
	return coll.Sort(spec.CloudField, true).Map(rename).First(), nil
}

// SceneCloudBands adds the "probability" and "clouds" bands to a single
// Sentinel-2 scene. The scene id is evaluated to locate its cloud
// probability image.
func (b *CollectionBuilder) SceneCloudBands(ctx context.Context, img expr.Image, sensor domain.Sensor) (expr.Image, error) {
	spec, err := b.catalog.LookupOptical(sensor)
	if err != nil {
		return expr.Image{}, err
	}
	if spec.Family != domain.FamilySentinel2 {
		return expr.Image{}, &domain.ValidationError{
			Field:      "cloud_bands",
			Value:      string(sensor),
			Constraint: string(domain.SensorS2),
			Message:    "cloud probability exists for Sentinel-2 only",
		}
	}

	var id string
	if err := b.compute(ctx, "scene_id", img.Get(domain.PropertyIndex), &id); err != nil {
		return expr.Image{}, fmt.Errorf("reading scene id: %w", err)
	}
	if id == "" {
		return expr.Image{}, fmt.Errorf("no %s scene: %w", sensor, domain.ErrNotFound)
	}
	return b.masker.AddSceneCloudBands(img, id), nil
}

// FromFile filters the surface reflectance collection by the region in a
// vector file, without masking or renaming.
func (b *CollectionBuilder) FromFile(ctx context.Context, regions *GeometryAdapter, path string, year int, sensor domain.Sensor) (expr.ImageCollection, error) {
	region, err := regions.RegionFromFile(ctx, path)
	if err != nil {
		return expr.ImageCollection{}, err
	}

	b.logger.Info("generating collection from file", "path", path, "sensor", sensor, "year", year)

	coll, _, _, err := b.Filtered(region, domain.CollectionRequest{
		Year:               year,
		Sensor:             sensor,
		SurfaceReflectance: true,
	})
	return coll, err
}

// Composite reduces a collection to a single image.
func Composite(coll expr.ImageCollection, method domain.Composite) expr.Image {
	switch method {
	case domain.CompositeMosaic:
		return coll.Mosaic()
	case domain.CompositeFirst:
		return coll.First()
	default:
		return coll.Median()
	}
}

// Count evaluates the number of scenes in coll.
func (b *CollectionBuilder) Count(ctx context.Context, coll expr.ImageCollection) (int, error) {
	var n int
	if err := b.compute(ctx, "count", coll.Size(), &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Scenes lists id, acquisition time and cloud metric of every scene in coll.
func (b *CollectionBuilder) Scenes(ctx context.Context, coll expr.ImageCollection, cloudField string) ([]domain.Scene, error) {
	var ids []string
	var times []float64
	var clouds []*float64

	if err := b.compute(ctx, "scenes", coll.AggregateArray(domain.PropertyIndex), &ids); err != nil {
		return nil, err
	}
	if err := b.compute(ctx, "scenes", coll.AggregateArray(domain.PropertyTimeStart), &times); err != nil {
		return nil, err
	}
	if err := b.compute(ctx, "scenes", coll.AggregateArray(cloudField), &clouds); err != nil {
		return nil, err
	}

	if len(times) != len(ids) {
		return nil, fmt.Errorf("scene metadata lengths differ (%d ids, %d times): %w",
			len(ids), len(times), domain.ErrRemoteEvaluation)
	}
	// Scenes without the cloud property are skipped by the aggregation.
	if len(clouds) != len(ids) {
		b.logger.Warn("cloud metric missing on some scenes", "field", cloudField, "scenes", len(ids), "values", len(clouds))
		clouds = make([]*float64, len(ids))
	}

	scenes := make([]domain.Scene, len(ids))
	for i, id := range ids {
		scenes[i] = domain.Scene{
			ID:         id,
			AcquiredAt: time.UnixMilli(int64(times[i])).UTC(),
		}
		if clouds[i] != nil {
			scenes[i].CloudCover = *clouds[i]
		}
	}
	return scenes, nil
}

func (b *CollectionBuilder) compute(ctx context.Context, op string, e expr.Expression, out interface{}) error {
	if b.engine == nil {
		return fmt.Errorf("%s: no remote service configured: %w", op, domain.ErrUnavailable)
	}

	start := time.Now()
	err := b.engine.Compute(ctx, e, out)
	b.metrics.IncRemoteCalls(op, err == nil)
	b.metrics.ObserveRemoteDuration(op, time.Since(start))
	return err
}
