package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/scenekit/internal/domain"
)

// GeoPackageReader reads feature tables from GeoPackage files with plain
// SQLite. Geometries are decoded from the GeoPackage binary encoding.
type GeoPackageReader struct{}

// NewGeoPackageReader creates a new GeoPackage reader.
func NewGeoPackageReader() *GeoPackageReader {
	return &GeoPackageReader{}
}

// Supports returns true for .gpkg files.
func (r *GeoPackageReader) Supports(path string) bool {
	return hasExtension(path, ".gpkg")
}

// layer describes a feature table listed in gpkg_contents.
type layer struct {
	Name           string
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// ReadFeatures reads every feature of the first feature table.
func (r *GeoPackageReader) ReadFeatures(ctx context.Context, path string) ([]domain.Feature, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, err
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	defer func() { _ = db.Close() }()

	layers, err := readLayers(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%s has no feature tables: %w", path, domain.ErrEmptyRegion)
	}

	return readLayerFeatures(ctx, db, layers[0])
}

// openDB opens the GeoPackage read-only.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// readLayers reads feature table information from gpkg_contents.
func readLayers(ctx context.Context, db *sql.DB) ([]layer, error) {
	query := `
		SELECT
			c.table_name,
			g.column_name,
			g.geometry_type_name,
			g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading layers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var layers []layer
	for rows.Next() {
		var l layer
		if err := rows.Scan(&l.Name, &l.GeometryColumn, &l.GeometryType, &l.SRID); err != nil {
			return nil, fmt.Errorf("scanning layer: %w", err)
		}
		layers = append(layers, l)
	}

	return layers, rows.Err()
}

func readLayerFeatures(ctx context.Context, db *sql.DB, l layer) ([]domain.Feature, error) {
	query := fmt.Sprintf(`SELECT * FROM "%s"`, l.Name) //#nosec G201 -- table name from gpkg_contents

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading layer %s: %w", l.Name, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var features []domain.Feature
	for rows.Next() {
		f, err := scanFeature(rows, columns, l)
		if err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			continue
		}
		features = append(features, f)
	}

	return features, rows.Err()
}

// scanFeature scans a row into a Feature.
func scanFeature(rows *sql.Rows, columns []string, l layer) (domain.Feature, error) {
	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return domain.Feature{}, err
	}

	feature := domain.Feature{
		SRID:       l.SRID,
		Properties: make(map[string]interface{}),
	}

	for i, col := range columns {
		switch col {
		case "fid":
		case l.GeometryColumn:
			blob, ok := values[i].([]byte)
			if !ok || len(blob) == 0 {
				continue
			}
			g, srid, err := decodeGeometry(blob)
			if err != nil {
				return domain.Feature{}, fmt.Errorf("layer %s: %w", l.Name, err)
			}
			feature.Geometry = g
			if srid > 0 {
				feature.SRID = srid
			}
		default:
			if values[i] == nil {
				continue
			}
			if b, ok := values[i].([]byte); ok {
				feature.Properties[col] = string(b)
				continue
			}
			feature.Properties[col] = values[i]
		}
	}

	return feature, nil
}

var errGeometryHeader = errors.New("invalid GeoPackage geometry header")

// envelopeSizes maps the envelope indicator (flag bits 1-3) to its size in bytes.
var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// decodeGeometry decodes a GeoPackage binary geometry: a "GP" magic,
// version, flags, srs_id and optional envelope, followed by standard WKB.
func decodeGeometry(blob []byte) (orb.Geometry, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, errGeometryHeader
	}

	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 == 1 {
		order = binary.LittleEndian
	}

	envelope, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, 0, errGeometryHeader
	}

	// Empty geometry flag.
	if flags&0x10 != 0 {
		return nil, 0, nil
	}

	srid := int(int32(order.Uint32(blob[4:8]))) //nolint:gosec // srs_id is a signed int32
	start := 8 + envelope
	if len(blob) <= start {
		return nil, 0, errGeometryHeader
	}

	g, err := wkb.Unmarshal(blob[start:])
	if err != nil {
		return nil, 0, fmt.Errorf("decoding geometry: %w", err)
	}
	return g, srid, nil
}
