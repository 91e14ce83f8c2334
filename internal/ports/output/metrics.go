package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncRemoteCalls increments the remote service call counter.
	IncRemoteCalls(operation string, success bool)

	// ObserveRemoteDuration records remote call duration.
	ObserveRemoteDuration(operation string, duration time.Duration)

	// IncDownloads increments the download counter.
	IncDownloads(success bool)

	// AddDownloadBytes adds to the downloaded byte counter.
	AddDownloadBytes(n int64)

	// IncTasks increments the export task counter by final state.
	IncTasks(state string)

	// SetJobsRunning sets the number of running batch jobs.
	SetJobsRunning(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncRemoteCalls implements MetricsCollector.
func (n *NoOpMetrics) IncRemoteCalls(_ string, _ bool) {}

// ObserveRemoteDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveRemoteDuration(_ string, _ time.Duration) {}

// IncDownloads implements MetricsCollector.
func (n *NoOpMetrics) IncDownloads(_ bool) {}

// AddDownloadBytes implements MetricsCollector.
func (n *NoOpMetrics) AddDownloadBytes(_ int64) {}

// IncTasks implements MetricsCollector.
func (n *NoOpMetrics) IncTasks(_ string) {}

// SetJobsRunning implements MetricsCollector.
func (n *NoOpMetrics) SetJobsRunning(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
