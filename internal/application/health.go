package application

import (
	"context"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/ports/input"
	"github.com/jobrunner/scenekit/internal/ports/output"
)

// HealthService provides health check functionality.
type HealthService struct {
	catalog *domain.Catalog
	engine  output.EarthEngine
	storage output.ObjectStorage
}

// NewHealthService creates a new health service. Storage may be nil.
func NewHealthService(catalog *domain.Catalog, engine output.EarthEngine, storage output.ObjectStorage) *HealthService {
	return &HealthService{
		catalog: catalog,
		engine:  engine,
		storage: storage,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(ctx context.Context) bool {
	return true // Basic health check
}

// IsReady returns true if the remote service client is configured.
func (s *HealthService) IsReady(ctx context.Context) bool {
	return s.engine != nil
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"earthengine": "ok",
		"storage":     "ok",
	}
	if s.engine == nil {
		components["earthengine"] = "not configured"
	}
	if s.storage == nil {
		components["storage"] = "disabled"
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		Sensors:    len(s.catalog.Sensors()),
		Components: components,
	}
}
