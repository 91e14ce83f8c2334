package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/jobrunner/scenekit/internal/domain"
)

// Transformer implements coordinate transformation using GDAL/OSR.
type Transformer struct {
	mu  sync.Mutex
	ok  map[int]bool
	ref func(code int) (*godal.SpatialRef, error)
}

// NewTransformer creates a new coordinate transformer.
func NewTransformer() *Transformer {
	return &Transformer{
		ok:  make(map[int]bool),
		ref: godal.NewSpatialRefFromEPSG,
	}
}

// Transform reprojects every vertex of g from sourceSRID to targetSRID.
func (t *Transformer) Transform(ctx context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error) {
	if sourceSRID == targetSRID {
		return g, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := t.ref(sourceSRID)
	if err != nil {
		return nil, unsupportedSRID(sourceSRID, err)
	}
	defer src.Close()

	dst, err := t.ref(targetSRID)
	if err != nil {
		return nil, unsupportedSRID(targetSRID, err)
	}
	defer dst.Close()

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("creating transformation from EPSG:%d to EPSG:%d: %w", sourceSRID, targetSRID, err)
	}
	defer tr.Close()

	out, err := transformGeometry(tr, orb.Clone(g))
	if err != nil {
		return nil, fmt.Errorf("transforming geometry from EPSG:%d to EPSG:%d: %w", sourceSRID, targetSRID, err)
	}
	return out, nil
}

// IsSupported checks if both SRIDs are known EPSG codes.
func (t *Transformer) IsSupported(sourceSRID, targetSRID int) bool {
	return t.known(sourceSRID) && t.known(targetSRID)
}

func (t *Transformer) known(code int) bool {
	if code <= 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if ok, cached := t.ok[code]; cached {
		return ok
	}
	sr, err := t.ref(code)
	if err == nil {
		sr.Close()
	}
	t.ok[code] = err == nil
	return err == nil
}

// transformPoints transforms pts in place.
func transformPoints(tr *godal.Transform, pts []orb.Point) error {
	if len(pts) == 0 {
		return nil
	}
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p[0], p[1]
	}

	successful := make([]bool, len(pts))
	if err := tr.TransformEx(xs, ys, nil, successful); err != nil {
		return err
	}
	for i := range pts {
		if !successful[i] {
			return fmt.Errorf("coordinate (%.6f, %.6f) could not be transformed", pts[i][0], pts[i][1])
		}
		pts[i] = orb.Point{xs[i], ys[i]}
	}
	return nil
}

// transformGeometry rewrites the coordinates of g in place. Points are
// values and are returned as new geometries.
func transformGeometry(tr *godal.Transform, g orb.Geometry) (orb.Geometry, error) {
	var err error
	switch v := g.(type) {
	case orb.Point:
		pts := []orb.Point{v}
		err = transformPoints(tr, pts)
		return pts[0], err
	case orb.MultiPoint:
		err = transformPoints(tr, v)
	case orb.LineString:
		err = transformPoints(tr, v)
	case orb.Ring:
		err = transformPoints(tr, v)
	case orb.MultiLineString:
		for _, ls := range v {
			if err = transformPoints(tr, ls); err != nil {
				break
			}
		}
	case orb.Polygon:
		err = transformRings(tr, v)
	case orb.MultiPolygon:
		for _, p := range v {
			if err = transformRings(tr, p); err != nil {
				break
			}
		}
	case orb.Collection:
		for i := range v {
			if v[i], err = transformGeometry(tr, v[i]); err != nil {
				break
			}
		}
	case orb.Bound:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
	return g, err
}

func transformRings(tr *godal.Transform, p orb.Polygon) error {
	for _, r := range p {
		if err := transformPoints(tr, r); err != nil {
			return err
		}
	}
	return nil
}

func unsupportedSRID(code int, err error) error {
	return &domain.ValidationError{
		Field:      "srid",
		Value:      code,
		Constraint: "EPSG code",
		Message:    err.Error(),
	}
}
