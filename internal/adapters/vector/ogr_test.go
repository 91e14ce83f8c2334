package vector

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/scenekit/internal/domain"
)

func TestOGRReaderReadFeatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coast.geojson")
	data := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"coast","segment":3},"geometry":{"type":"LineString","coordinates":[[174.7,-41.3],[174.8,-41.2]]}}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewOGRReader(".geojson")
	if !r.Supports(path) {
		t.Fatalf("Supports(%s) = false", path)
	}

	features, err := r.ReadFeatures(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFeatures() error = %v", err)
	}
	if len(features) != 1 {
		t.Fatalf("got %d features, want 1", len(features))
	}

	f := features[0]
	if f.Kind() != domain.KindLineString {
		t.Errorf("kind = %s, want LineString", f.Kind())
	}
	if f.SRID != domain.SRIDWGS84 {
		t.Errorf("SRID = %d, want 4326", f.SRID)
	}
	if f.Properties["name"] != "coast" {
		t.Errorf("name = %v, want coast", f.Properties["name"])
	}
	if f.Properties["segment"] != int64(3) {
		t.Errorf("segment = %v (%T), want 3", f.Properties["segment"], f.Properties["segment"])
	}
}

func TestOGRReaderDefaults(t *testing.T) {
	r := NewOGRReader()
	if !r.Supports("coast.SHP") {
		t.Error("default reader does not support shapefiles")
	}
	if r.Supports("coast.gpkg") {
		t.Error("default reader supports GeoPackage")
	}
}

func TestTransformer(t *testing.T) {
	tr := NewTransformer()
	ctx := context.Background()

	if !tr.IsSupported(4326, 3857) {
		t.Fatal("IsSupported(4326, 3857) = false")
	}
	if tr.IsSupported(4326, 0) {
		t.Error("IsSupported(4326, 0) = true")
	}

	g, err := tr.Transform(ctx, orb.Point{1, 0}, 4326, 3857)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	p, ok := g.(orb.Point)
	if !ok {
		t.Fatalf("Transform() returned %T, want orb.Point", g)
	}
	if math.Abs(p[0]-111319.49) > 0.1 || math.Abs(p[1]) > 1e-6 {
		t.Errorf("Transform() = %v, want (111319.49, 0)", p)
	}

	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	g, err = tr.Transform(ctx, poly, 4326, 3857)
	if err != nil {
		t.Fatalf("Transform(polygon) error = %v", err)
	}
	if got := g.(orb.Polygon)[0][1]; math.Abs(got[0]-111319.49) > 0.1 {
		t.Errorf("second vertex = %v, want x = 111319.49", got)
	}
	if poly[0][1][0] != 1 {
		t.Error("Transform() modified its input")
	}

	same, err := tr.Transform(ctx, poly, 4326, 4326)
	if err != nil || !orb.Equal(same, poly) {
		t.Errorf("identity Transform() = %v, %v", same, err)
	}
}
