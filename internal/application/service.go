package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
	"github.com/jobrunner/scenekit/internal/ports/input"
)

// SceneService ties region conversion, collection building and export
// together for the CLI, the HTTP API and batch runs.
type SceneService struct {
	catalog  *domain.Catalog
	regions  *GeometryAdapter
	builder  *CollectionBuilder
	exporter *RasterExporter
	logger   *slog.Logger
}

// NewSceneService creates a new scene service.
func NewSceneService(
	catalog *domain.Catalog,
	regions *GeometryAdapter,
	builder *CollectionBuilder,
	exporter *RasterExporter,
	logger *slog.Logger,
) *SceneService {
	return &SceneService{
		catalog:  catalog,
		regions:  regions,
		builder:  builder,
		exporter: exporter,
		logger:   logger,
	}
}

// Sensors returns the sensor catalog.
func (s *SceneService) Sensors() []domain.SensorSpec {
	return s.catalog.Sensors()
}

// Sensor returns one catalog entry.
func (s *SceneService) Sensor(id domain.Sensor) (domain.SensorSpec, error) {
	return s.catalog.Lookup(id)
}

// Collection builds and encodes the masked collection for a region.
func (s *SceneService) Collection(ctx context.Context, features []domain.Feature, req domain.CollectionRequest, evaluate bool) (*input.CollectionResult, error) {
	region, err := s.regions.RegionFromFeatures(ctx, features)
	if err != nil {
		return nil, err
	}

	var coll expr.ImageCollection
	if evaluate {
		coll, err = s.builder.Resolve(ctx, region, req)
	} else {
		coll, err = s.builder.Build(region, req)
	}
	if err != nil {
		return nil, err
	}

	graph, err := expr.Encode(coll)
	if err != nil {
		return nil, fmt.Errorf("encoding collection: %w", err)
	}

	result := &input.CollectionResult{Graph: graph}
	if evaluate {
		n, err := s.builder.Count(ctx, coll)
		if err != nil {
			return nil, err
		}
		result.Scenes = &n
	}
	return result, nil
}

// Download produces an image for a region and writes it to disk.
func (s *SceneService) Download(ctx context.Context, features []domain.Feature, req domain.ProductRequest, dl domain.DownloadRequest) (*domain.DownloadResult, error) {
	region, err := s.regions.RegionFromFeatures(ctx, features)
	if err != nil {
		return nil, err
	}
	return s.DownloadRegion(ctx, region, req, dl)
}

// DownloadRegion is Download for an already converted region.
func (s *SceneService) DownloadRegion(ctx context.Context, region expr.FeatureCollection, req domain.ProductRequest, dl domain.DownloadRequest) (*domain.DownloadResult, error) {
	img, err := s.Product(ctx, region, req)
	if err != nil {
		return nil, err
	}
	return s.exporter.Download(ctx, img, region, dl)
}

// Product builds the single image described by req.
func (s *SceneService) Product(ctx context.Context, region expr.FeatureCollection, req domain.ProductRequest) (expr.Image, error) {
	indices := make([]func(expr.Image) expr.Image, 0, len(req.Indices))
	for _, name := range req.Indices {
		fn := IndexFunc(name)
		if fn == nil {
			return expr.Image{}, &domain.ValidationError{
				Field:      "indices",
				Value:      name,
				Constraint: fmt.Sprint(IndexNames()),
				Message:    "unknown spectral index",
			}
		}
		indices = append(indices, fn)
	}

	var img expr.Image
	if req.BestScene {
		best, err := s.builder.BestScene(region, req.Collection)
		if err != nil {
			return expr.Image{}, err
		}
		img = best
		if req.CloudBands {
			if img, err = s.builder.SceneCloudBands(ctx, img, req.Collection.Sensor); err != nil {
				return expr.Image{}, err
			}
		}
	} else {
		if req.CloudBands {
			return expr.Image{}, &domain.ValidationError{
				Field:      "cloud_bands",
				Value:      true,
				Constraint: "best_scene",
				Message:    "cloud bands are added to a single best scene",
			}
		}
		coll, err := s.builder.Resolve(ctx, region, req.Collection)
		if err != nil {
			return expr.Image{}, err
		}
		img = Composite(coll, req.Composite)
	}

	for _, fn := range indices {
		img = fn(img)
	}

	if req.ResampleCRS != "" {
		scale := req.ResampleScale
		if scale <= 0 {
			scale = domain.DefaultResampleScale
		}
		img = Resample(img, req.ResampleCRS, scale)
	}

	s.logger.Debug("built product",
		"sensor", req.Collection.Sensor,
		"year", req.Collection.Year,
		"best_scene", req.BestScene,
		"indices", req.Indices,
	)
	return img, nil
}

// Exporter returns the raster exporter.
func (s *SceneService) Exporter() *RasterExporter {
	return s.exporter
}

// Builder returns the collection builder.
func (s *SceneService) Builder() *CollectionBuilder {
	return s.builder
}

// Regions returns the geometry adapter.
func (s *SceneService) Regions() *GeometryAdapter {
	return s.regions
}
