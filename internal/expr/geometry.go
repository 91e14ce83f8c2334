package expr

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Geometry is a deferred geometry in EPSG:4326.
type Geometry struct{ n *Node }

// Node implements Expression.
func (g Geometry) Node() *Node { return g.n }

// GeometryFromOrb converts a WGS84 orb geometry. Supported types are Point,
// LineString, Polygon and their multi variants.
func GeometryFromOrb(g orb.Geometry) (Geometry, error) {
	var fn string
	var coords interface{}

	switch v := g.(type) {
	case orb.Point:
		fn, coords = "GeometryConstructors.Point", point(v)
	case orb.LineString:
		fn, coords = "GeometryConstructors.LineString", line(v)
	case orb.Polygon:
		fn, coords = "GeometryConstructors.Polygon", polygon(v)
	case orb.MultiPoint:
		pts := make([][]float64, len(v))
		for i, p := range v {
			pts[i] = point(p)
		}
		fn, coords = "GeometryConstructors.MultiPoint", pts
	case orb.MultiLineString:
		lines := make([][][]float64, len(v))
		for i, l := range v {
			lines[i] = line(l)
		}
		fn, coords = "GeometryConstructors.MultiLineString", lines
	case orb.MultiPolygon:
		polys := make([][][][]float64, len(v))
		for i, p := range v {
			polys[i] = polygon(p)
		}
		fn, coords = "GeometryConstructors.MultiPolygon", polys
	default:
		return Geometry{}, fmt.Errorf("geometry type %T cannot be sent to the remote service", g)
	}

	return Geometry{Invoke(fn, map[string]*Node{"coordinates": Constant(coords)})}, nil
}

func point(p orb.Point) []float64 {
	return []float64{p[0], p[1]}
}

func line(l orb.LineString) [][]float64 {
	out := make([][]float64, len(l))
	for i, p := range l {
		out[i] = point(p)
	}
	return out
}

func polygon(p orb.Polygon) [][][]float64 {
	out := make([][][]float64, len(p))
	for i, r := range p {
		out[i] = line(orb.LineString(r))
	}
	return out
}

// Buffer grows the geometry by distance metres.
func (g Geometry) Buffer(distance float64) Geometry {
	return Geometry{Invoke("Geometry.buffer", map[string]*Node{
		"geometry": g.n,
		"distance": Constant(distance),
	})}
}

// Feature is a deferred geometry with properties.
type Feature struct{ n *Node }

// Node implements Expression.
func (f Feature) Node() *Node { return f.n }

// NewFeature wraps a geometry and its properties.
func NewFeature(g Geometry, properties map[string]interface{}) Feature {
	args := map[string]*Node{"geometry": g.n}
	if len(properties) > 0 {
		args["metadata"] = Constant(properties)
	}
	return Feature{Invoke("Feature", args)}
}

// Buffer grows the feature geometry by distance metres.
func (f Feature) Buffer(distance float64) Feature {
	return Feature{Invoke("Feature.buffer", map[string]*Node{
		"feature":  f.n,
		"distance": Constant(distance),
	})}
}

// Geometry returns the feature's geometry.
func (f Feature) Geometry() Geometry {
	return Geometry{Invoke("Feature.geometry", map[string]*Node{"feature": f.n})}
}

// FeatureCollection is a deferred set of features, used as region handle.
type FeatureCollection struct{ n *Node }

// Node implements Expression.
func (fc FeatureCollection) Node() *Node { return fc.n }

// NewFeatureCollection builds a collection from features.
func NewFeatureCollection(features ...Feature) FeatureCollection {
	items := make([]*Node, len(features))
	for i, f := range features {
		items[i] = f.n
	}
	return FeatureCollection{Invoke("Collection", map[string]*Node{"features": Array(items...)})}
}

// Geometry returns the union of all feature geometries.
func (fc FeatureCollection) Geometry() Geometry {
	return Geometry{Invoke("Collection.geometry", map[string]*Node{"collection": fc.n})}
}
