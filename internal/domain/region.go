package domain

import "github.com/paulmach/orb"

// GeometryKind is the GeoJSON geometry type of a feature.
type GeometryKind string

// Geometry kind constants.
const (
	KindPoint           GeometryKind = "Point"
	KindLineString      GeometryKind = "LineString"
	KindPolygon         GeometryKind = "Polygon"
	KindMultiPoint      GeometryKind = "MultiPoint"
	KindMultiLineString GeometryKind = "MultiLineString"
	KindMultiPolygon    GeometryKind = "MultiPolygon"
	KindCollection      GeometryKind = "GeometryCollection"
)

// Accepted geometry kinds.
var (
	DatasetGeometryKinds = []GeometryKind{KindLineString, KindPolygon}
	FeatureGeometryKinds = []GeometryKind{KindLineString, KindPolygon, KindPoint}
)

// LineBufferMeters is the fixed buffer applied to line features before they
// become a region (coastal corridor policy).
const LineBufferMeters = 1500

// SRIDWGS84 is the geographic reference system regions are expressed in.
const SRIDWGS84 = 4326

// Feature is a single vector record.
type Feature struct {
	Geometry   orb.Geometry           // Geometry in the feature's SRID
	SRID       int                    // Spatial Reference ID (0 means WGS84)
	Properties map[string]interface{} // Attribute data
}

// Kind returns the geometry kind of the feature.
func (f *Feature) Kind() GeometryKind {
	if f.Geometry == nil {
		return ""
	}
	return GeometryKind(f.Geometry.GeoJSONType())
}

// IsGeographic returns true if the feature is in EPSG:4326.
func (f *Feature) IsGeographic() bool {
	return f.SRID == 0 || f.SRID == SRIDWGS84
}

// AllowsKind checks if kind is part of allowed.
func AllowsKind(allowed []GeometryKind, kind GeometryKind) bool {
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}

// Region is a set of geographic features used as a spatial filter bound.
// Features are always in EPSG:4326; line features still need the fixed
// buffer, which is applied by the remote service.
type Region struct {
	Features []Feature
}

// Bound returns the bounding box of all features.
func (r *Region) Bound() orb.Bound {
	var b orb.Bound
	for i, f := range r.Features {
		if i == 0 {
			b = f.Geometry.Bound()
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// Len returns the number of features in the region.
func (r *Region) Len() int {
	return len(r.Features)
}
