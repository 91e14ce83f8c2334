package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/scenekit/internal/domain"
)

func TestParseGeoJSON(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantCount int
		wantKind  domain.GeometryKind
		wantProp  string
		wantErr   bool
	}{
		{
			name: "feature collection",
			data: `{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
				{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}]}`,
			wantCount: 2,
			wantKind:  domain.KindPolygon,
			wantProp:  "a",
		},
		{
			name:      "single feature",
			data:      `{"type":"Feature","properties":{"name":"coast"},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}`,
			wantCount: 1,
			wantKind:  domain.KindLineString,
			wantProp:  "coast",
		},
		{
			name:      "bare geometry",
			data:      `{"type":"Point","coordinates":[174.7,-41.3]}`,
			wantCount: 1,
			wantKind:  domain.KindPoint,
		},
		{
			name:    "invalid json",
			data:    `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			features, err := ParseGeoJSON([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGeoJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("error = %v, want ErrInvalidInput", err)
				}
				return
			}
			if len(features) != tt.wantCount {
				t.Fatalf("got %d features, want %d", len(features), tt.wantCount)
			}
			f := features[0]
			if f.Kind() != tt.wantKind {
				t.Errorf("kind = %s, want %s", f.Kind(), tt.wantKind)
			}
			if f.SRID != domain.SRIDWGS84 {
				t.Errorf("SRID = %d, want %d", f.SRID, domain.SRIDWGS84)
			}
			if tt.wantProp != "" && f.Properties["name"] != tt.wantProp {
				t.Errorf("name = %v, want %s", f.Properties["name"], tt.wantProp)
			}
		})
	}
}

func TestGeoJSONReaderReadFeatures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.geojson")
	data := `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewGeoJSONReader()
	features, err := r.ReadFeatures(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFeatures() error = %v", err)
	}
	if len(features) != 1 {
		t.Errorf("got %d features, want 1", len(features))
	}

	_, err = r.ReadFeatures(context.Background(), filepath.Join(dir, "missing.geojson"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}
}
