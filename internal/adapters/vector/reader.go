// Package vector reads region features from vector files and reprojects
// geometries.
package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

// MultiReader dispatches to the first reader that supports a path.
type MultiReader struct {
	readers []output.VectorReader
}

// NewMultiReader creates a reader over readers, in priority order.
func NewMultiReader(readers ...output.VectorReader) *MultiReader {
	return &MultiReader{readers: readers}
}

// ReadFeatures reads all features of the first layer in path.
func (m *MultiReader) ReadFeatures(ctx context.Context, path string) ([]domain.Feature, error) {
	for _, r := range m.readers {
		if r.Supports(path) {
			return r.ReadFeatures(ctx, path)
		}
	}
	return nil, fmt.Errorf("no reader for %s: %w", filepath.Base(path), domain.ErrUnsupported)
}

// Supports returns true if any reader supports path.
func (m *MultiReader) Supports(path string) bool {
	for _, r := range m.readers {
		if r.Supports(path) {
			return true
		}
	}
	return false
}

// RegionExtensions are the file extensions accepted as region files.
var RegionExtensions = []string{".shp", ".geojson", ".json", ".gpkg"}

// IsRegionFile checks if path has a region file extension.
func IsRegionFile(path string) bool {
	return hasExtension(path, RegionExtensions...)
}

func hasExtension(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
