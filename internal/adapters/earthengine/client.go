// Package earthengine implements the EarthEngine port over the Earth Engine
// REST API.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
)

// DefaultBaseURL is the public Earth Engine endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com"

// Config holds client configuration.
type Config struct {
	BaseURL string
	Project string // Cloud project, e.g. "my-project"
	Timeout time.Duration
}

// Client implements output.EarthEngine.
type Client struct {
	http    *http.Client
	baseURL string
	project string
	logger  *slog.Logger
}

// NewClient creates a client using an already authorized HTTP client.
func NewClient(httpClient *http.Client, cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		project: cfg.Project,
		logger:  logger,
	}
}

// New creates a client and its authorized HTTP client.
func New(ctx context.Context, cfg Config, auth AuthConfig, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" {
		return nil, &domain.ConfigError{Field: "earthengine.project", Message: "project is required"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	httpClient, err := NewHTTPClient(ctx, auth, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewClient(httpClient, cfg, logger), nil
}

type computeRequest struct {
	Expression *expr.Graph `json:"expression"`
}

type computeResponse struct {
	Result json.RawMessage `json:"result"`
}

// Compute evaluates e and decodes the result into out.
func (c *Client) Compute(ctx context.Context, e expr.Expression, out interface{}) error {
	graph, err := expr.Encode(e)
	if err != nil {
		return fmt.Errorf("encoding expression: %w", err)
	}

	var resp computeResponse
	if err := c.post(ctx, "compute", c.projectURL("value:compute"), computeRequest{Expression: graph}, &resp); err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decoding compute result: %w", err)
	}
	return nil
}

type thumbnailRequest struct {
	Expression *expr.Graph `json:"expression"`
	FileFormat string      `json:"fileFormat"`
	BandIDs    []string    `json:"bandIds,omitempty"`
}

type thumbnailResponse struct {
	Name string `json:"name"`
}

// DownloadURL registers a pixel download of img and returns its URL.
func (c *Client) DownloadURL(ctx context.Context, img expr.Image, opts domain.DownloadOptions) (string, error) {
	if opts.Format == "" {
		opts.Format = domain.FormatGeoTIFF
	}

	graph, err := expr.Encode(onGrid(img, opts.CRS, opts.Scale))
	if err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}

	var resp thumbnailResponse
	body := thumbnailRequest{Expression: graph, FileFormat: opts.Format, BandIDs: opts.Bands}
	if err := c.post(ctx, "thumbnails", c.projectURL("thumbnails"), body, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", &domain.EvaluationError{Operation: "thumbnails", StatusCode: http.StatusOK, Message: "response has no name"}
	}

	return c.baseURL + "/v1/" + resp.Name + ":getPixels", nil
}

type exportRequest struct {
	Expression        *expr.Graph       `json:"expression"`
	Description       string            `json:"description,omitempty"`
	FileExportOptions fileExportOptions `json:"fileExportOptions"`
	MaxPixels         string            `json:"maxPixels,omitempty"`
	RequestID         string            `json:"requestId"`
}

type fileExportOptions struct {
	FileFormat              string                   `json:"fileFormat"`
	DriveDestination        *driveDestination        `json:"driveDestination,omitempty"`
	CloudStorageDestination *cloudStorageDestination `json:"cloudStorageDestination,omitempty"`
}

type driveDestination struct {
	Folder         string `json:"folder,omitempty"`
	FilenamePrefix string `json:"filenamePrefix,omitempty"`
}

type cloudStorageDestination struct {
	Bucket         string `json:"bucket"`
	FilenamePrefix string `json:"filenamePrefix,omitempty"`
}

// StartExport starts a batch image export.
func (c *Client) StartExport(ctx context.Context, img expr.Image, req domain.ExportRequest) (*domain.Task, error) {
	graph, err := expr.Encode(onGrid(img, req.CRS, req.Scale))
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	format := req.Format
	if format == "" {
		format = domain.FormatGeoTIFF
	}
	prefix := req.Prefix
	if prefix == "" {
		prefix = req.Description
	}

	body := exportRequest{
		Expression:        graph,
		Description:       req.Description,
		FileExportOptions: fileExportOptions{FileFormat: format},
		RequestID:         uuid.NewString(),
	}
	if req.MaxPixels > 0 {
		body.MaxPixels = strconv.FormatInt(req.MaxPixels, 10)
	}

	switch req.Destination {
	case domain.DestinationCloudStorage:
		if req.Bucket == "" {
			return nil, &domain.ValidationError{Field: "bucket", Constraint: "non-empty", Message: "cloud storage export needs a bucket"}
		}
		body.FileExportOptions.CloudStorageDestination = &cloudStorageDestination{Bucket: req.Bucket, FilenamePrefix: prefix}
	case "", domain.DestinationDrive:
		body.FileExportOptions.DriveDestination = &driveDestination{Folder: req.Folder, FilenamePrefix: prefix}
	default:
		return nil, &domain.ValidationError{
			Field:      "destination",
			Value:      req.Destination,
			Constraint: "drive|gcs",
			Message:    "unknown export destination",
		}
	}

	var op operation
	if err := c.post(ctx, "export", c.projectURL("image:export"), body, &op); err != nil {
		return nil, err
	}

	task := op.task()
	if task.Description == "" {
		task.Description = req.Description
	}
	c.logger.Debug("export submitted", "task", task.Name, "request_id", body.RequestID)
	return task, nil
}

// TaskStatus returns the current state of an export operation.
func (c *Client) TaskStatus(ctx context.Context, name string) (*domain.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/"+name, nil)
	if err != nil {
		return nil, err
	}

	var op operation
	if err := c.do(req, "operation", &op); err != nil {
		return nil, err
	}
	return op.task(), nil
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		State       string    `json:"state"`
		Description string    `json:"description"`
		Progress    float64   `json:"progress"`
		UpdateTime  time.Time `json:"updateTime"`
	} `json:"metadata"`
	Error *apiError `json:"error"`
}

func (op *operation) task() *domain.Task {
	t := &domain.Task{
		Name:        op.Name,
		Description: op.Metadata.Description,
		State:       domain.TaskState(op.Metadata.State),
		Progress:    op.Metadata.Progress,
		UpdatedAt:   op.Metadata.UpdateTime,
	}

	switch {
	case op.Error != nil:
		t.Error = op.Error.Message
		if t.State.Active() || t.State == "" {
			t.State = domain.TaskFailed
		}
	case op.Done && t.State == "":
		t.State = domain.TaskSucceeded
	case t.State == "":
		t.State = domain.TaskPending
	}
	return t
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func (c *Client) projectURL(method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/%s", c.baseURL, c.project, method)
}

func (c *Client) post(ctx context.Context, op, url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", op, err)
	}

	c.logger.Debug("remote call",
		"operation", op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(op, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

func responseError(op string, status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return &domain.EvaluationError{
			Operation:  op,
			StatusCode: status,
			Status:     er.Error.Status,
			Message:    er.Error.Message,
		}
	}
	return &domain.EvaluationError{
		Operation:  op,
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
}

// onGrid reprojects img to crs at scale when a pixel size is given.
func onGrid(img expr.Image, crs string, scale float64) expr.Image {
	if scale <= 0 {
		return img
	}
	if crs == "" {
		crs = "EPSG:4326"
	}
	return img.Reproject(expr.CRS(crs), scale)
}
