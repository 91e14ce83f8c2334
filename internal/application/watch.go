package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/scenekit/internal/domain"
)

// ErrRateLimited is returned when a region is reprocessed too quickly.
var ErrRateLimited = errors.New("rate limit exceeded")

// WatchResult contains the result of processing one region file.
type WatchResult struct {
	Region      string                 `json:"region"`
	Result      *domain.DownloadResult `json:"result"`
	ProcessedAt time.Time              `json:"processed_at"`
}

// RegionWatchService downloads a product whenever a region file appears
// or changes in a watched directory.
type RegionWatchService struct {
	service  *SceneService
	product  domain.ProductRequest
	download domain.DownloadRequest
	cooldown time.Duration
	logger   *slog.Logger

	// Prevents concurrent runs for the same region
	runMu sync.Mutex

	// Last run per region for rate limiting
	lastRun map[string]time.Time
	lastMu  sync.Mutex
}

// NewRegionWatchService creates a watch service. The download request
// provides folder, CRS, scale and format; the file name is derived from
// the region file, sensor and year.
func NewRegionWatchService(
	service *SceneService,
	product domain.ProductRequest,
	download domain.DownloadRequest,
	cooldown time.Duration,
	logger *slog.Logger,
) *RegionWatchService {
	return &RegionWatchService{
		service:  service,
		product:  product,
		download: download,
		cooldown: cooldown,
		logger:   logger,
		lastRun:  make(map[string]time.Time),
	}
}

// Process converts the region file at path and downloads the product.
func (s *RegionWatchService) Process(ctx context.Context, path string) (WatchResult, error) {
	if err := s.allow(path); err != nil {
		return WatchResult{}, err
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	region, err := s.service.Regions().RegionFromFile(ctx, path)
	if err != nil {
		return WatchResult{}, err
	}

	dl := s.download
	dl.Name = OutputName(path, s.product.Collection)

	s.logger.Info("processing region", "region", path, "output", dl.Name)

	res, err := s.service.DownloadRegion(ctx, region, s.product, dl)
	if err != nil {
		return WatchResult{}, fmt.Errorf("processing %s: %w", path, err)
	}

	return WatchResult{
		Region:      path,
		Result:      res,
		ProcessedAt: time.Now(),
	}, nil
}

// allow enforces the per region cooldown.
func (s *RegionWatchService) allow(path string) error {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	if last, ok := s.lastRun[path]; ok && time.Since(last) < s.cooldown {
		return ErrRateLimited
	}
	s.lastRun[path] = time.Now()
	return nil
}

// Forget drops the rate limit state of a deleted region.
func (s *RegionWatchService) Forget(path string) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	delete(s.lastRun, path)
}

// OutputName returns <region>_<sensor>_<year>.tif for a region file.
func OutputName(regionPath string, req domain.CollectionRequest) string {
	base := strings.TrimSuffix(filepath.Base(regionPath), filepath.Ext(regionPath))
	return fmt.Sprintf("%s_%s_%d.tif", base, req.Sensor, req.Year)
}
