package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

// GeometryAdapter turns vector features into region handles usable as
// collection bounds.
type GeometryAdapter struct {
	reader      output.VectorReader
	transformer output.CoordinateTransformer
	logger      *slog.Logger
}

// NewGeometryAdapter creates a new geometry adapter. The reader is only
// needed by RegionFromFile.
func NewGeometryAdapter(
	reader output.VectorReader,
	transformer output.CoordinateTransformer,
	logger *slog.Logger,
) *GeometryAdapter {
	return &GeometryAdapter{
		reader:      reader,
		transformer: transformer,
		logger:      logger,
	}
}

// RegionFromFile reads a vector dataset and converts all of its features.
func (a *GeometryAdapter) RegionFromFile(ctx context.Context, path string) (expr.FeatureCollection, error) {
	if a.reader == nil {
		return expr.FeatureCollection{}, fmt.Errorf("reading %s: no vector reader configured: %w", path, domain.ErrUnsupported)
	}

	features, err := a.reader.ReadFeatures(ctx, path)
	if err != nil {
		return expr.FeatureCollection{}, fmt.Errorf("reading %s: %w", path, err)
	}

	a.logger.Debug("read vector dataset", "path", path, "features", len(features))
	return a.RegionFromFeatures(ctx, features)
}

// RegionFromFeatures converts a whole dataset. Only LineString and Polygon
// features are accepted.
func (a *GeometryAdapter) RegionFromFeatures(ctx context.Context, features []domain.Feature) (expr.FeatureCollection, error) {
	region, err := a.Prepare(ctx, features, domain.DatasetGeometryKinds)
	if err != nil {
		return expr.FeatureCollection{}, err
	}
	return a.Handle(region)
}

// RegionFromFeature converts a single record. Point features are accepted
// in addition to LineString and Polygon.
func (a *GeometryAdapter) RegionFromFeature(ctx context.Context, feature domain.Feature) (expr.FeatureCollection, error) {
	region, err := a.Prepare(ctx, []domain.Feature{feature}, domain.FeatureGeometryKinds)
	if err != nil {
		return expr.FeatureCollection{}, err
	}
	return a.Handle(region)
}

// Prepare validates geometry kinds and reprojects every feature to EPSG:4326.
func (a *GeometryAdapter) Prepare(ctx context.Context, features []domain.Feature, allowed []domain.GeometryKind) (*domain.Region, error) {
	if len(features) == 0 {
		return nil, domain.ErrEmptyRegion
	}

	// Check every kind before doing any reprojection work.
	for _, f := range features {
		if kind := f.Kind(); !domain.AllowsKind(allowed, kind) {
			return nil, &domain.GeometryKindError{Kind: kind, Allowed: allowed}
		}
	}

	region := &domain.Region{Features: make([]domain.Feature, 0, len(features))}
	for i, f := range features {
		geo, err := a.toGeographic(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		region.Features = append(region.Features, geo)
	}

	return region, nil
}

// Handle converts a prepared region into a feature collection handle.
// Line features are buffered by domain.LineBufferMeters.
func (a *GeometryAdapter) Handle(region *domain.Region) (expr.FeatureCollection, error) {
	out := make([]expr.Feature, 0, region.Len())
	for i, f := range region.Features {
		g, err := expr.GeometryFromOrb(f.Geometry)
		if err != nil {
			return expr.FeatureCollection{}, fmt.Errorf("feature %d: %w", i, err)
		}

		feature := expr.NewFeature(g, f.Properties)
		if f.Kind() == domain.KindLineString {
			feature = feature.Buffer(domain.LineBufferMeters)
		}
		out = append(out, feature)
	}
	return expr.NewFeatureCollection(out...), nil
}

func (a *GeometryAdapter) toGeographic(ctx context.Context, f domain.Feature) (domain.Feature, error) {
	if f.IsGeographic() {
		f.SRID = domain.SRIDWGS84
		return f, nil
	}

	if a.transformer == nil || !a.transformer.IsSupported(f.SRID, domain.SRIDWGS84) {
		return domain.Feature{}, fmt.Errorf("transformation from EPSG:%d to EPSG:%d: %w",
			f.SRID, domain.SRIDWGS84, domain.ErrUnsupported)
	}

	g, err := a.transformer.Transform(ctx, f.Geometry, f.SRID, domain.SRIDWGS84)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("reprojecting from EPSG:%d: %w", f.SRID, err)
	}

	return domain.Feature{
		Geometry:   g,
		SRID:       domain.SRIDWGS84,
		Properties: f.Properties,
	}, nil
}
