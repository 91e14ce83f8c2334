package vector

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/scenekit/internal/domain"
)

// GeoJSONReader reads GeoJSON files. GeoJSON coordinates are always
// EPSG:4326.
type GeoJSONReader struct{}

// NewGeoJSONReader creates a new GeoJSON reader.
func NewGeoJSONReader() *GeoJSONReader {
	return &GeoJSONReader{}
}

// Supports returns true for .geojson and .json files.
func (r *GeoJSONReader) Supports(path string) bool {
	return hasExtension(path, ".geojson", ".json")
}

// ReadFeatures reads a FeatureCollection, a single Feature or a bare
// geometry.
func (r *GeoJSONReader) ReadFeatures(_ context.Context, path string) ([]domain.Feature, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is provided by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, err
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON decodes a FeatureCollection, a single Feature or a bare
// geometry into features.
func ParseGeoJSON(data []byte) ([]domain.Feature, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && fc.Type == geojson.TypeFeatureCollection {
		features := make([]domain.Feature, 0, len(fc.Features))
		for _, f := range fc.Features {
			features = append(features, fromGeoJSON(f))
		}
		return features, nil
	}

	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Type == "Feature" {
		return []domain.Feature{fromGeoJSON(f)}, nil
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, &domain.ValidationError{
			Field:      "geojson",
			Constraint: "FeatureCollection|Feature|Geometry",
			Message:    err.Error(),
		}
	}
	return []domain.Feature{{Geometry: g.Geometry(), SRID: domain.SRIDWGS84}}, nil
}

func fromGeoJSON(f *geojson.Feature) domain.Feature {
	return domain.Feature{
		Geometry:   f.Geometry,
		SRID:       domain.SRIDWGS84,
		Properties: map[string]interface{}(f.Properties),
	}
}
