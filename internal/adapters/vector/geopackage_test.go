package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/scenekit/internal/domain"
)

// encodeGeometry builds a GeoPackage binary geometry.
func encodeGeometry(t *testing.T, g orb.Geometry, srid int, order binary.ByteOrder, withEnvelope bool) []byte {
	t.Helper()

	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		t.Fatalf("marshal wkb: %v", err)
	}

	flags := byte(0)
	if order == binary.LittleEndian {
		flags |= 0x01
	}
	if withEnvelope {
		flags |= 1 << 1
	}

	header := []byte{'G', 'P', 0, flags, 0, 0, 0, 0}
	order.PutUint32(header[4:], uint32(srid)) //nolint:gosec // test values are small

	blob := append([]byte(nil), header...)
	if withEnvelope {
		b := g.Bound()
		env := make([]byte, 32)
		for i, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
			order.PutUint64(env[i*8:], math.Float64bits(v))
		}
		blob = append(blob, env...)
	}
	return append(blob, body...)
}

func createGeoPackage(t *testing.T, srid int, blobs ...[]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "regions.gpkg")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	stmts := []string{
		`CREATE TABLE gpkg_contents (table_name TEXT PRIMARY KEY, data_type TEXT NOT NULL, identifier TEXT)`,
		`CREATE TABLE gpkg_geometry_columns (table_name TEXT, column_name TEXT, geometry_type_name TEXT, srs_id INTEGER, z TINYINT, m TINYINT)`,
		`CREATE TABLE lakes (fid INTEGER PRIMARY KEY AUTOINCREMENT, geom BLOB, name TEXT, area REAL)`,
		`INSERT INTO gpkg_contents VALUES ('lakes', 'features', 'lakes')`,
		`INSERT INTO gpkg_contents VALUES ('tiles', 'tiles', 'tiles')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	if _, err := db.Exec(`INSERT INTO gpkg_geometry_columns VALUES ('lakes', 'geom', 'POLYGON', ?, 0, 0)`, srid); err != nil {
		t.Fatalf("insert geometry column: %v", err)
	}
	for i, b := range blobs {
		if _, err := db.Exec(`INSERT INTO lakes (geom, name, area) VALUES (?, ?, ?)`, b, "lake", float64(i)+0.5); err != nil {
			t.Fatalf("insert feature: %v", err)
		}
	}
	if _, err := db.Exec(`INSERT INTO lakes (geom, name, area) VALUES (NULL, 'no geometry', 0)`); err != nil {
		t.Fatalf("insert empty feature: %v", err)
	}

	return path
}

var square = orb.Polygon{{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}}}

func TestGeoPackageReaderReadFeatures(t *testing.T) {
	path := createGeoPackage(t, 2193,
		encodeGeometry(t, square, 2193, binary.LittleEndian, false),
		encodeGeometry(t, square, 2193, binary.BigEndian, true),
	)

	features, err := NewGeoPackageReader().ReadFeatures(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFeatures() error = %v", err)
	}

	if len(features) != 2 {
		t.Fatalf("ReadFeatures() returned %d features, want 2", len(features))
	}
	for i, f := range features {
		if f.SRID != 2193 {
			t.Errorf("feature %d SRID = %d, want 2193", i, f.SRID)
		}
		if f.Kind() != domain.KindPolygon {
			t.Errorf("feature %d kind = %s, want Polygon", i, f.Kind())
		}
		if !orb.Equal(f.Geometry, square) {
			t.Errorf("feature %d geometry = %v, want %v", i, f.Geometry, square)
		}
		if f.Properties["name"] != "lake" {
			t.Errorf("feature %d name = %v, want lake", i, f.Properties["name"])
		}
		if _, ok := f.Properties["fid"]; ok {
			t.Errorf("feature %d carries fid as a property", i)
		}
		if _, ok := f.Properties["geom"]; ok {
			t.Errorf("feature %d carries the geometry column as a property", i)
		}
	}
	if features[1].Properties["area"] != 1.5 {
		t.Errorf("area = %v, want 1.5", features[1].Properties["area"])
	}
}

func TestGeoPackageReaderMissingFile(t *testing.T) {
	_, err := NewGeoPackageReader().ReadFeatures(context.Background(), filepath.Join(t.TempDir(), "missing.gpkg"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ReadFeatures() error = %v, want ErrNotFound", err)
	}
}

func TestDecodeGeometry(t *testing.T) {
	tests := []struct {
		name     string
		blob     []byte
		wantSRID int
		wantNil  bool
		wantErr  bool
	}{
		{
			name:     "little endian without envelope",
			blob:     encodeGeometry(t, orb.Point{3, 4}, 4326, binary.LittleEndian, false),
			wantSRID: 4326,
		},
		{
			name:     "big endian with envelope",
			blob:     encodeGeometry(t, orb.Point{3, 4}, 2193, binary.BigEndian, true),
			wantSRID: 2193,
		},
		{
			name:    "empty geometry flag",
			blob:    []byte{'G', 'P', 0, 0x11, 0xe6, 0x10, 0, 0},
			wantNil: true,
		},
		{
			name:    "bad magic",
			blob:    []byte{'X', 'P', 0, 1, 0, 0, 0, 0, 1},
			wantErr: true,
		},
		{
			name:    "bad envelope indicator",
			blob:    []byte{'G', 'P', 0, 0x0f, 0, 0, 0, 0, 1},
			wantErr: true,
		},
		{
			name:    "truncated",
			blob:    []byte{'G', 'P', 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, srid, err := decodeGeometry(tt.blob)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeGeometry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if g != nil {
					t.Errorf("decodeGeometry() = %v, want nil", g)
				}
				return
			}
			if srid != tt.wantSRID {
				t.Errorf("srid = %d, want %d", srid, tt.wantSRID)
			}
			if !orb.Equal(g, orb.Point{3, 4}) {
				t.Errorf("geometry = %v, want POINT(3 4)", g)
			}
		})
	}
}
