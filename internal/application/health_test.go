package application

import (
	"context"
	"testing"

	"github.com/jobrunner/scenekit/internal/domain"
)

func TestHealthServiceReady(t *testing.T) {
	svc := NewHealthService(domain.DefaultCatalog(), &mockEngine{}, &mockStorage{})

	if !svc.IsHealthy(context.Background()) {
		t.Error("IsHealthy() = false, want true")
	}
	if !svc.IsReady(context.Background()) {
		t.Error("IsReady() = false, want true")
	}

	details := svc.GetHealthDetails(context.Background())
	if details.Sensors != 8 {
		t.Errorf("Sensors = %d, want 8", details.Sensors)
	}
	if details.Components["earthengine"] != "ok" || details.Components["storage"] != "ok" {
		t.Errorf("Components = %v", details.Components)
	}
}

func TestHealthServiceNotConfigured(t *testing.T) {
	svc := NewHealthService(domain.DefaultCatalog(), nil, nil)

	if svc.IsReady(context.Background()) {
		t.Error("IsReady() = true without a remote client")
	}

	details := svc.GetHealthDetails(context.Background())
	if details.Components["earthengine"] != "not configured" {
		t.Errorf("earthengine = %q", details.Components["earthengine"])
	}
	if details.Components["storage"] != "disabled" {
		t.Errorf("storage = %q", details.Components["storage"])
	}
}
