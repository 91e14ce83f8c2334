package output

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/jobrunner/scenekit/internal/domain"
)

// VectorReader defines the secondary port for reading vector datasets.
type VectorReader interface {
	// ReadFeatures returns every feature of the dataset at path, in the
	// dataset's own reference system.
	ReadFeatures(ctx context.Context, path string) ([]domain.Feature, error)

	// Supports reports whether the reader can open path.
	Supports(path string) bool
}

// CoordinateTransformer defines the secondary port for coordinate transformations.
type CoordinateTransformer interface {
	// Transform reprojects a geometry from one SRID to another.
	Transform(ctx context.Context, g orb.Geometry, sourceSRID, targetSRID int) (orb.Geometry, error)

	// IsSupported checks if a transformation is supported.
	IsSupported(sourceSRID, targetSRID int) bool
}
