package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jobrunner/scenekit/internal/adapters/vector"
	"github.com/jobrunner/scenekit/internal/domain"
)

// maxBodyBytes caps request bodies; regions are sent inline as GeoJSON.
const maxBodyBytes = 8 << 20

// CollectionBody is the request body for collection requests.
type CollectionBody struct {
	Region             json.RawMessage `json:"region"`
	Year               int             `json:"year"`
	Sensor             string          `json:"sensor"`
	CloudCover         *float64        `json:"cloud_cover,omitempty"`
	SurfaceReflectance bool            `json:"surface_reflectance"`
	ScaleFactors       bool            `json:"scale_factors"`
	Mask               string          `json:"mask,omitempty"`
}

// DownloadBody is the request body for download requests.
type DownloadBody struct {
	CollectionBody
	Name          string   `json:"name"`
	BestScene     bool     `json:"best_scene"`
	CloudBands    bool     `json:"cloud_bands,omitempty"`
	Composite     string   `json:"composite,omitempty"`
	Indices       []string `json:"indices,omitempty"`
	ResampleCRS   string   `json:"resample_crs,omitempty"`
	ResampleScale float64  `json:"resample_scale,omitempty"`
	CRS           string   `json:"crs,omitempty"`
	Scale         float64  `json:"scale,omitempty"`
}

func (b CollectionBody) request() domain.CollectionRequest {
	return domain.CollectionRequest{
		Year:               b.Year,
		Sensor:             domain.Sensor(b.Sensor),
		CloudCover:         b.CloudCover,
		SurfaceReflectance: b.SurfaceReflectance,
		ScaleFactors:       b.ScaleFactors,
		Mask:               domain.MaskMethod(b.Mask),
	}
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":     boolToStatus(details.Healthy),
		"ready":      details.Ready,
		"sensors":    details.Sensors,
		"components": details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListSensors returns the sensor catalog.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	specs := s.scenes.Sensors()

	response := make([]map[string]interface{}, len(specs))
	for i := range specs {
		response[i] = formatSensor(&specs[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensors": response,
		"count":   len(specs),
	})
}

// handleGetSensor returns a single catalog entry.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id := domain.Sensor(mux.Vars(r)["sensor"])

	spec, err := s.scenes.Sensor(id)
	if err != nil {
		var sensorErr *domain.SensorError
		if errors.As(err, &sensorErr) {
			s.writeError(w, http.StatusNotFound, "Sensor not found")
			return
		}
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, formatSensor(&spec))
}

// handleCollection builds the masked collection for an inline region.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var body CollectionBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	features, err := parseRegion(body.Region)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	evaluate := false
	if v := r.URL.Query().Get("evaluate"); v != "" {
		evaluate, err = strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid evaluate parameter")
			return
		}
	}

	result, err := s.scenes.Collection(r.Context(), features, body.request(), evaluate)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleDownload produces an image and writes it into the configured folder.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var body DownloadBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.Name == "" || body.Name != filepath.Base(body.Name) || strings.ContainsAny(body.Name, `/\`) || body.Name == ".." || body.Name == "." {
		s.writeError(w, http.StatusBadRequest, "name must be a plain file name")
		return
	}

	composite, err := domain.ParseComposite(body.Composite)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	features, err := parseRegion(body.Region)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	product := domain.ProductRequest{
		Collection:    body.request(),
		BestScene:     body.BestScene,
		CloudBands:    body.CloudBands,
		Composite:     composite,
		Indices:       body.Indices,
		ResampleCRS:   body.ResampleCRS,
		ResampleScale: body.ResampleScale,
	}

	dl := s.options.Downloads
	dl.Name = body.Name
	if body.CRS != "" {
		dl.CRS = body.CRS
	}
	if body.Scale > 0 {
		dl.Scale = body.Scale
	}

	result, err := s.scenes.Download(r.Context(), features, product, dl)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, formatDownload(result))
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseRegion converts an inline GeoJSON region into features.
func parseRegion(raw json.RawMessage) ([]domain.Feature, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &domain.ValidationError{
			Field:      "region",
			Constraint: "GeoJSON",
			Message:    "region is required",
		}
	}
	features, err := vector.ParseGeoJSON(raw)
	if err != nil {
		return nil, err
	}
	for _, f := range features {
		if f.Geometry == nil {
			return nil, &domain.ValidationError{
				Field:      "region",
				Constraint: "GeoJSON",
				Message:    "region feature without geometry",
			}
		}
	}
	return features, nil
}

// formatSensor formats a catalog entry for JSON output.
func formatSensor(spec *domain.SensorSpec) map[string]interface{} {
	out := map[string]interface{}{
		"id":            spec.ID,
		"family":        spec.Family,
		"optical":       spec.IsOptical(),
		"bands":         spec.Bands,
		"sr_collection": spec.SRCollection,
	}
	if spec.SRBands != nil {
		out["sr_bands"] = spec.SRBands
	}
	if spec.TOACollection != "" {
		out["toa_collection"] = spec.TOACollection
	}
	if spec.OutputBands != nil {
		out["output_bands"] = spec.OutputBands
	}
	if spec.CloudField != "" {
		out["cloud_field"] = spec.CloudField
	}
	return out
}

// formatDownload formats a download result for JSON output.
func formatDownload(res *domain.DownloadResult) map[string]interface{} {
	out := map[string]interface{}{
		"path":       res.Path,
		"name":       filepath.Base(res.Path),
		"bands":      res.Bands,
		"bytes":      res.Bytes,
		"written":    res.Written,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	}
	if res.Failure != nil {
		out["failure"] = res.Failure.Error()
	}
	return out
}

// handleServiceError maps service errors to HTTP status codes.
func (s *Server) handleServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupported):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		s.logger.Warn("upstream unavailable", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrRemoteEvaluation):
		s.logger.Warn("remote evaluation failed", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
