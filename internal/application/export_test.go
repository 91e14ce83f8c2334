package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
)

func bandEngine(bands ...string) *mockEngine {
	return &mockEngine{
		url: "https://earthengine.example/v1/projects/p/thumbnails/abc:getPixels",
		computeFn: func(_ *expr.Node) (interface{}, error) {
			return bands, nil
		},
	}
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	engine := bandEngine("blue", "green", "red")
	fetcher := &mockFetcher{content: []byte("tiff")}
	meta := newMockRaster()
	storage := &mockStorage{}
	ledger := &mockLedger{}
	metrics := newMockMetrics()

	exporter := NewRasterExporter(engine, fetcher, meta, metrics, testLogger(), ExporterConfig{
		Storage: storage,
		Ledger:  ledger,
	})

	res, err := exporter.Download(context.Background(), expr.LoadImage("scene"), testRegion(t), domain.DownloadRequest{
		Folder: dir,
		Name:   "s2.tif",
		CRS:    "EPSG:2193",
		Scale:  10,
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	path := filepath.Join(dir, "s2.tif")
	if !res.Written || res.Path != path || res.Bytes != 4 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not written: %v", err)
	}

	if got := meta.names[path]; len(got) != 3 || got[0] != "blue" {
		t.Errorf("band names = %v, want [blue green red]", got)
	}

	if len(engine.downloadOps) != 1 {
		t.Fatalf("download URL requests = %d, want 1", len(engine.downloadOps))
	}
	opts := engine.downloadOps[0]
	if opts.CRS != "EPSG:2193" || opts.Scale != 10 || opts.Format != domain.FormatGeoTIFF || len(opts.Bands) != 3 {
		t.Errorf("download options = %+v", opts)
	}
	if engine.downloads[0].Node().Func() != "Image.clip" {
		t.Error("image should be clipped to the region")
	}

	if storage.uploaded["s2.tif"] != path {
		t.Errorf("uploaded = %v, want s2.tif from %s", storage.uploaded, path)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].State != "written" || ledger.entries[0].ID == "" {
		t.Errorf("ledger = %+v", ledger.entries)
	}
	if metrics.downloads[true] != 1 {
		t.Errorf("successful downloads = %d, want 1", metrics.downloads[true])
	}
}

func TestDownloadFailures(t *testing.T) {
	tests := []struct {
		name        string
		urlErr      error
		fetchErr    error
		wantErr     bool
		wantFailure bool
	}{
		{
			name:        "download URL rejected",
			urlErr:      &domain.EvaluationError{Operation: "thumbnails", StatusCode: 400, Message: "Total request size must be less than or equal to 50331648 bytes."},
			wantFailure: true,
		},
		{
			name:        "not found",
			fetchErr:    &domain.DownloadError{StatusCode: 404, Message: "not found"},
			wantFailure: true,
		},
		{
			name:     "disk error",
			fetchErr: errors.New("no space left on device"),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			engine := bandEngine("blue")
			engine.urlErr = tt.urlErr
			ledger := &mockLedger{}
			metrics := newMockMetrics()

			exporter := NewRasterExporter(engine, &mockFetcher{err: tt.fetchErr}, newMockRaster(), metrics, testLogger(), ExporterConfig{Ledger: ledger})

			res, err := exporter.Download(context.Background(), expr.LoadImage("scene"), nil, domain.DownloadRequest{
				Folder: dir,
				Name:   "s2.tif",
				Scale:  10,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Download() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if res.Written {
				t.Error("failed download reported as written")
			}
			var dlErr *domain.DownloadError
			if !errors.As(res.Failure, &dlErr) || dlErr.Name != "s2.tif" {
				t.Errorf("Failure = %v, want DownloadError for s2.tif", res.Failure)
			}
			if !errors.Is(res.Failure, domain.ErrDownloadFailed) {
				t.Error("Failure should wrap ErrDownloadFailed")
			}
			if _, err := os.Stat(filepath.Join(dir, "s2.tif")); !os.IsNotExist(err) {
				t.Error("no file should be left at the destination")
			}
			if len(ledger.entries) != 1 || ledger.entries[0].State != "skipped" {
				t.Errorf("ledger = %+v", ledger.entries)
			}
			if metrics.downloads[false] != 1 {
				t.Errorf("failed downloads = %d, want 1", metrics.downloads[false])
			}
		})
	}
}

func TestDownloadMissingFolder(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "exports")
	ledger := &mockLedger{}
	exporter := NewRasterExporter(bandEngine("blue"), &mockFetcher{content: []byte("tiff")}, newMockRaster(), nil, testLogger(), ExporterConfig{Ledger: ledger})

	res, err := exporter.Download(context.Background(), expr.LoadImage("scene"), nil, domain.DownloadRequest{
		Folder: folder,
		Name:   "s2.tif",
		Scale:  10,
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Download() = %+v, %v, want os.ErrNotExist", res, err)
	}
	if _, statErr := os.Stat(folder); !os.IsNotExist(statErr) {
		t.Error("Download() should not create the output folder")
	}
	if len(ledger.entries) != 0 {
		t.Errorf("ledger = %+v, want no skip entry", ledger.entries)
	}
}

func TestDownloadValidation(t *testing.T) {
	exporter := NewRasterExporter(bandEngine(), &mockFetcher{}, newMockRaster(), nil, testLogger(), ExporterConfig{})

	_, err := exporter.Download(context.Background(), expr.LoadImage("scene"), nil, domain.DownloadRequest{Name: "x.tif"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Download() error = %v, want ErrInvalidInput", err)
	}
}

func TestDownloadBandNamesError(t *testing.T) {
	engine := &mockEngine{computeErr: &domain.EvaluationError{Operation: "compute", StatusCode: 400, Message: "bad graph"}}
	exporter := NewRasterExporter(engine, &mockFetcher{}, newMockRaster(), nil, testLogger(), ExporterConfig{})

	_, err := exporter.Download(context.Background(), expr.LoadImage("scene"), nil, domain.DownloadRequest{
		Folder: t.TempDir(),
		Name:   "x.tif",
		Scale:  10,
	})
	if !errors.Is(err, domain.ErrRemoteEvaluation) {
		t.Errorf("Download() error = %v, want ErrRemoteEvaluation", err)
	}
	if len(engine.downloads) != 0 {
		t.Error("no download URL should be requested")
	}
}

func TestSetNoData(t *testing.T) {
	meta := newMockRaster()
	exporter := NewRasterExporter(nil, nil, meta, nil, testLogger(), ExporterConfig{})

	if err := exporter.SetNoData("out/a.tif", -9999); err != nil {
		t.Fatalf("SetNoData() error = %v", err)
	}
	if meta.nodata["out/a.tif"] != -9999 {
		t.Errorf("nodata = %v, want -9999", meta.nodata["out/a.tif"])
	}

	if err := exporter.SetBandNames("out/a.tif", []string{"ndvi"}); err != nil {
		t.Fatalf("SetBandNames() error = %v", err)
	}
	if got := meta.names["out/a.tif"]; len(got) != 1 || got[0] != "ndvi" {
		t.Errorf("band names = %v", got)
	}
}

func TestStartExport(t *testing.T) {
	engine := &mockEngine{exportTask: &domain.Task{Name: "projects/p/operations/T1", State: domain.TaskPending}}
	ledger := &mockLedger{}
	exporter := NewRasterExporter(engine, nil, nil, nil, testLogger(), ExporterConfig{Ledger: ledger})

	task, err := exporter.StartExport(context.Background(), expr.LoadImage("scene"), nil, domain.ExportRequest{
		Description: "s2_2020",
		Destination: domain.DestinationDrive,
		Folder:      "exports",
		Scale:       10,
	})
	if err != nil {
		t.Fatalf("StartExport() error = %v", err)
	}
	if task.Name != "projects/p/operations/T1" {
		t.Errorf("task = %+v", task)
	}
	if engine.exports[0].Format != domain.FormatGeoTIFF {
		t.Errorf("format = %q, want %q", engine.exports[0].Format, domain.FormatGeoTIFF)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].Kind != domain.LedgerTask {
		t.Errorf("ledger = %+v", ledger.entries)
	}

	engine.exportErr = errors.New("quota exceeded")
	if _, err := exporter.StartExport(context.Background(), expr.LoadImage("scene"), nil, domain.ExportRequest{Description: "x"}); err == nil {
		t.Error("StartExport() should fail when the service rejects the task")
	}
}

func TestRunTask(t *testing.T) {
	running := &domain.Task{Name: "op", State: domain.TaskRunning}

	tests := []struct {
		name      string
		statuses  []*domain.Task
		wantState domain.TaskState
		wantErr   error
		wantPolls int
	}{
		{
			name:      "succeeds",
			statuses:  []*domain.Task{running, {Name: "op", State: domain.TaskSucceeded}},
			wantState: domain.TaskSucceeded,
			wantPolls: 2,
		},
		{
			name:      "fails",
			statuses:  []*domain.Task{{Name: "op", State: domain.TaskFailed, Error: "user memory limit exceeded"}},
			wantState: domain.TaskFailed,
			wantErr:   domain.ErrTaskFailed,
			wantPolls: 1,
		},
		{
			name:      "cancelled",
			statuses:  []*domain.Task{{Name: "op", State: domain.TaskCancelled}},
			wantState: domain.TaskCancelled,
			wantErr:   domain.ErrTaskFailed,
			wantPolls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{statuses: tt.statuses}
			metrics := newMockMetrics()
			exporter := NewRasterExporter(engine, nil, nil, metrics, testLogger(), ExporterConfig{PollInterval: time.Millisecond})

			task, err := exporter.RunTask(context.Background(), &domain.Task{Name: "op", State: domain.TaskPending})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("RunTask() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("RunTask() error = %v, want %v", err, tt.wantErr)
			}
			if task.State != tt.wantState {
				t.Errorf("state = %s, want %s", task.State, tt.wantState)
			}
			if engine.statusCalls != tt.wantPolls {
				t.Errorf("polls = %d, want %d", engine.statusCalls, tt.wantPolls)
			}
			if metrics.tasks[string(tt.wantState)] != 1 {
				t.Errorf("task metrics = %v", metrics.tasks)
			}
		})
	}
}

func TestRunTaskContextCancel(t *testing.T) {
	engine := &mockEngine{statuses: []*domain.Task{{Name: "op", State: domain.TaskRunning}}}
	exporter := NewRasterExporter(engine, nil, nil, nil, testLogger(), ExporterConfig{PollInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := exporter.RunTask(ctx, &domain.Task{Name: "op", State: domain.TaskRunning})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RunTask() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRunTaskAlreadyDone(t *testing.T) {
	engine := &mockEngine{}
	exporter := NewRasterExporter(engine, nil, nil, nil, testLogger(), ExporterConfig{})

	task, err := exporter.RunTask(context.Background(), &domain.Task{Name: "op", State: domain.TaskSucceeded})
	if err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}
	if task.State != domain.TaskSucceeded || engine.statusCalls != 0 {
		t.Error("finished task should not be polled")
	}
}
