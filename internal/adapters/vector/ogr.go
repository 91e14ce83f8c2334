package vector

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/scenekit/internal/domain"
)

var registerOnce sync.Once

// OGRReader reads vector datasets through GDAL/OGR. It is used for
// shapefiles and any other format GDAL can open.
type OGRReader struct {
	extensions []string
}

// NewOGRReader creates a reader for the given file extensions. Without
// extensions it handles shapefiles.
func NewOGRReader(extensions ...string) *OGRReader {
	registerOnce.Do(godal.RegisterAll)
	if len(extensions) == 0 {
		extensions = []string{".shp"}
	}
	return &OGRReader{extensions: extensions}
}

// Supports returns true for the configured extensions.
func (r *OGRReader) Supports(path string) bool {
	return hasExtension(path, r.extensions...)
}

// ReadFeatures reads every feature of the first layer in path.
func (r *OGRReader) ReadFeatures(ctx context.Context, path string) ([]domain.Feature, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, err
	}

	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	defer func() { _ = ds.Close() }()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("%s has no layers: %w", path, domain.ErrEmptyRegion)
	}
	layer := layers[0]

	srid := domain.SRIDWGS84
	if sr := layer.SpatialRef(); sr != nil {
		srid = epsgCode(sr)
		sr.Close()
	}

	var features []domain.Feature
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		feat := layer.NextFeature()
		if feat == nil {
			break
		}
		f, err := toFeature(feat, srid)
		feat.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if f.Geometry != nil {
			features = append(features, f)
		}
	}

	return features, nil
}

func toFeature(feat *godal.Feature, srid int) (domain.Feature, error) {
	f := domain.Feature{
		SRID:       srid,
		Properties: make(map[string]interface{}),
	}

	for name, field := range feat.Fields() {
		switch field.Type() {
		case godal.FTInt, godal.FTInt64:
			f.Properties[name] = field.Int()
		case godal.FTReal:
			f.Properties[name] = field.Float()
		default:
			f.Properties[name] = field.String()
		}
	}

	geom := feat.Geometry()
	if geom == nil || geom.Empty() {
		return f, nil
	}
	defer geom.Close()

	data, err := geom.WKB()
	if err != nil {
		return f, err
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return f, fmt.Errorf("decoding geometry: %w", err)
	}
	f.Geometry = g
	return f, nil
}

// epsgCode returns the EPSG code of sr, or 0 when it has none.
func epsgCode(sr *godal.SpatialRef) int {
	if sr.AuthorityName("") != "EPSG" {
		if err := sr.AutoIdentifyEPSG(); err != nil {
			return 0
		}
	}
	code, err := strconv.Atoi(sr.AuthorityCode(""))
	if err != nil {
		return 0
	}
	return code
}
