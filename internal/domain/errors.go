package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrUnsupportedGeometryKind = fmt.Errorf("geometry kind: %w", ErrUnsupported)
	ErrUnsupportedSensor       = fmt.Errorf("sensor: %w", ErrUnsupported)
	ErrDownloadFailed          = fmt.Errorf("download: %w", ErrUnavailable)
	ErrRemoteEvaluation        = fmt.Errorf("remote evaluation: %w", ErrInternal)
	ErrUnjoinedScene           = fmt.Errorf("cloud probability for scene: %w", ErrNotFound)
	ErrTaskFailed              = fmt.Errorf("export task: %w", ErrInternal)
	ErrStorageUnavailable      = fmt.Errorf("storage: %w", ErrUnavailable)
	ErrEmptyRegion             = fmt.Errorf("region: %w", ErrInvalidInput)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// GeometryKindError reports a geometry type outside the accepted set.
type GeometryKindError struct {
	Kind    GeometryKind   // Offending geometry type
	Allowed []GeometryKind // Accepted types for the operation
}

// Error implements the error interface.
func (e *GeometryKindError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, k := range e.Allowed {
		allowed[i] = string(k)
	}
	return fmt.Sprintf("unsupported geometry kind %q, must be one of %s",
		e.Kind, strings.Join(allowed, ", "))
}

// Unwrap returns the underlying error type.
func (e *GeometryKindError) Unwrap() error {
	return ErrUnsupportedGeometryKind
}

// SensorError reports a sensor identifier that is not in the catalog
// or not usable for the requested operation.
type SensorError struct {
	Sensor Sensor // Requested sensor identifier
	Reason string // Optional detail
}

// Error implements the error interface.
func (e *SensorError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("sensor %q is not compatible: %s", e.Sensor, e.Reason)
	}
	return fmt.Sprintf("sensor %q is not compatible, must be one of %s",
		e.Sensor, strings.Join(OpticalSensorNames(), ", "))
}

// Unwrap returns the underlying error type.
func (e *SensorError) Unwrap() error {
	return ErrUnsupportedSensor
}

// DownloadError represents a failed download URL request or transfer.
type DownloadError struct {
	Name       string // Destination file name
	StatusCode int    // HTTP status (0 if the request never completed)
	Message    string // Message reported by the remote side
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("download of %s failed with status %d: %s", e.Name, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("download of %s failed with status %d", e.Name, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("download of %s failed: %v", e.Name, e.Err)
	default:
		return fmt.Sprintf("download of %s failed", e.Name)
	}
}

// Unwrap returns the underlying errors.
func (e *DownloadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDownloadFailed, e.Err}
	}
	return []error{ErrDownloadFailed}
}

// EvaluationError represents a failure reported by the remote service
// while evaluating a request graph.
type EvaluationError struct {
	Operation  string // compute, thumbnails, export, operation
	StatusCode int    // HTTP status code
	Status     string // Remote status string (e.g. INVALID_ARGUMENT)
	Message    string // Remote message
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("remote %s failed (%d %s): %s", e.Operation, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s failed (%d): %s", e.Operation, e.StatusCode, e.Message)
}

// Unwrap returns the underlying error type.
func (e *EvaluationError) Unwrap() error {
	return ErrRemoteEvaluation
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (upload, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
