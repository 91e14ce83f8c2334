package output

import (
	"context"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
)

// EarthEngine defines the secondary port for the remote image processing
// service. It is the single point where request graphs are evaluated.
type EarthEngine interface {
	// Compute evaluates an expression and decodes the result into out.
	Compute(ctx context.Context, e expr.Expression, out interface{}) error

	// DownloadURL requests a time-limited URL serving the image pixels.
	DownloadURL(ctx context.Context, img expr.Image, opts domain.DownloadOptions) (string, error)

	// StartExport starts a batch export task.
	StartExport(ctx context.Context, img expr.Image, req domain.ExportRequest) (*domain.Task, error)

	// TaskStatus returns the current state of an export task.
	TaskStatus(ctx context.Context, name string) (*domain.Task, error)
}
