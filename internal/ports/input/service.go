// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
)

// SceneService defines the primary port for collection and download requests.
type SceneService interface {
	// Sensors returns the sensor catalog.
	Sensors() []domain.SensorSpec

	// Sensor returns one catalog entry.
	Sensor(id domain.Sensor) (domain.SensorSpec, error)

	// Collection builds the masked collection for a region. With evaluate
	// set, the scene count is computed remotely.
	Collection(ctx context.Context, features []domain.Feature, req domain.CollectionRequest, evaluate bool) (*CollectionResult, error)

	// Download produces an image for a region and writes it to disk.
	Download(ctx context.Context, features []domain.Feature, req domain.ProductRequest, dl domain.DownloadRequest) (*domain.DownloadResult, error)
}

// CollectionResult is the encoded collection graph and optional scene count.
type CollectionResult struct {
	Graph  *expr.Graph `json:"graph"`
	Scenes *int        `json:"scenes,omitempty"`
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	Sensors    int               // Number of catalog entries
	Components map[string]string // Component statuses
}
