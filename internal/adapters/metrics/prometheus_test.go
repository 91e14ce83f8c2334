package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector("test")

	c.IncRemoteCalls("compute", true)
	c.IncRemoteCalls("compute", true)
	c.IncRemoteCalls("compute", false)
	c.IncDownloads(true)
	c.AddDownloadBytes(2048)
	c.AddDownloadBytes(-1)
	c.IncTasks("SUCCEEDED")
	c.SetJobsRunning(3)
	c.IncStorageOperations("upload", false)
	c.ObserveRemoteDuration("compute", 2*time.Second)
	c.ObserveStorageDuration("upload", time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"remote success", testutil.ToFloat64(c.remoteCalls.WithLabelValues("compute", "success")), 2},
		{"remote error", testutil.ToFloat64(c.remoteCalls.WithLabelValues("compute", "error")), 1},
		{"downloads", testutil.ToFloat64(c.downloads.WithLabelValues("success")), 1},
		{"bytes", testutil.ToFloat64(c.downloadBytes), 2048},
		{"tasks", testutil.ToFloat64(c.tasks.WithLabelValues("SUCCEEDED")), 1},
		{"jobs", testutil.ToFloat64(c.jobsRunning), 3},
		{"storage", testutil.ToFloat64(c.storageOperations.WithLabelValues("upload", "error")), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(c.remoteDuration); n != 1 {
		t.Errorf("remote duration series = %d, want 1", n)
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("")
	b := NewCollector("")

	a.IncDownloads(true)

	if got := testutil.ToFloat64(b.downloads.WithLabelValues("success")); got != 0 {
		t.Errorf("second collector counted %v downloads", got)
	}
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	c := NewCollector("test")

	r := mux.NewRouter()
	r.Use(c.Middleware)
	r.HandleFunc("/api/v1/sensors/{sensor}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, s := range []string{"S2", "LS8", "MODIS"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sensors/"+s, nil))
	}

	got := testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/sensors/{sensor}", "4xx"))
	if got != 3 {
		t.Errorf("requests for route template = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector("test")
	c.IncTasks("FAILED")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_export_tasks_total{state="FAILED"} 1`) {
		t.Errorf("metrics output missing task counter:\n%s", rec.Body.String())
	}
}

func TestWriteToTextfile(t *testing.T) {
	c := NewCollector("test")
	c.SetJobsRunning(2)

	path := filepath.Join(t.TempDir(), "scenekit.prom")
	if err := c.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "test_batch_jobs_running 2") {
		t.Errorf("textfile missing gauge:\n%s", data)
	}
}

func TestStatusToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{42, "unknown"},
	}

	for _, tt := range tests {
		if got := statusToString(tt.code); got != tt.want {
			t.Errorf("statusToString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
