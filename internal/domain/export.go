package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Output formats understood by the remote service.
const (
	FormatGeoTIFF = "GEO_TIFF"
	FormatNPY     = "NPY"
)

// Composite selects how a collection is reduced to a single image.
type Composite string

// Composite reducers.
const (
	CompositeMedian Composite = "median"
	CompositeMosaic Composite = "mosaic"
	CompositeFirst  Composite = "first"
)

// ParseComposite parses a composite name. The empty string maps to median.
func ParseComposite(s string) (Composite, error) {
	switch Composite(s) {
	case "", CompositeMedian:
		return CompositeMedian, nil
	case CompositeMosaic:
		return CompositeMosaic, nil
	case CompositeFirst:
		return CompositeFirst, nil
	default:
		return "", &ValidationError{
			Field:      "composite",
			Value:      s,
			Constraint: "median|mosaic|first",
			Message:    fmt.Sprintf("unknown composite %q", s),
		}
	}
}

// DownloadOptions are the pixel grid parameters for a download URL.
type DownloadOptions struct {
	Bands  []string // Bands to include (in order)
	CRS    string   // e.g. EPSG:4326
	Scale  float64  // Pixel size in CRS units
	Format string   // GEO_TIFF by default
}

// DownloadRequest describes a local raster download.
type DownloadRequest struct {
	Folder string
	Name   string
	CRS    string
	Scale  float64
	Format string
}

// Path returns the destination path <folder>/<name>.
func (r DownloadRequest) Path() string {
	return filepath.Join(r.Folder, r.Name)
}

// Validate checks the download request.
func (r DownloadRequest) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Value: r.Name, Constraint: "non-empty", Message: "file name is required"}
	}
	if r.Scale <= 0 {
		return &ValidationError{Field: "scale", Value: r.Scale, Constraint: "> 0", Message: "pixel size must be positive"}
	}
	return nil
}

// DownloadResult reports the outcome of a download.
type DownloadResult struct {
	Path    string        // Destination path
	Bands   []string      // Band names stamped on the file
	Bytes   int64         // Bytes written
	Written bool          // False when the download was skipped
	Failure error         // DownloadError when Written is false
	Elapsed time.Duration // Wall time
}

// ExportDestination selects where a batch export task writes.
type ExportDestination string

// Export destinations.
const (
	DestinationDrive        ExportDestination = "drive"
	DestinationCloudStorage ExportDestination = "gcs"
)

// ExportRequest describes a remote batch export task.
type ExportRequest struct {
	Description string
	Destination ExportDestination
	Folder      string // Drive folder
	Bucket      string // Cloud Storage bucket
	Prefix      string // File name prefix
	CRS         string
	Scale       float64
	Format      string
	MaxPixels   int64
}

// TaskState is the state of a remote export task.
type TaskState string

// Task states.
const (
	TaskPending    TaskState = "PENDING"
	TaskRunning    TaskState = "RUNNING"
	TaskCancelling TaskState = "CANCELLING"
	TaskSucceeded  TaskState = "SUCCEEDED"
	TaskCancelled  TaskState = "CANCELLED"
	TaskFailed     TaskState = "FAILED"
)

// Active returns true while the task has not reached a terminal state.
func (s TaskState) Active() bool {
	return s == TaskPending || s == TaskRunning || s == TaskCancelling
}

// Task is a remote long-running export operation.
type Task struct {
	Name        string    // Operation name, e.g. projects/p/operations/ID
	Description string    // Task description
	State       TaskState // Current state
	Progress    float64   // 0..1 when reported
	Error       string    // Error message for failed tasks
	UpdatedAt   time.Time // Last update reported by the service
}

// Done returns true if the task reached a terminal state.
func (t *Task) Done() bool {
	return !t.State.Active()
}

// Scene is scalar metadata of one image in a collection.
type Scene struct {
	ID         string    `csv:"id" json:"id"`
	AcquiredAt time.Time `csv:"acquired_at" json:"acquired_at"`
	CloudCover float64   `csv:"cloud_cover" json:"cloud_cover"`
}

// LedgerKind is the kind of a ledger entry.
type LedgerKind string

// Ledger entry kinds.
const (
	LedgerDownload LedgerKind = "download"
	LedgerTask     LedgerKind = "task"
)

// LedgerEntry records a download or export task.
type LedgerEntry struct {
	ID        string
	Kind      LedgerKind
	Name      string // File path or task name
	State     string // written, skipped, or a TaskState
	Message   string
	Bands     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
