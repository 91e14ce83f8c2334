// Package watcher reports region files that appear, change or disappear in
// watched directories.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jobrunner/scenekit/internal/adapters/vector"
)

// DefaultSettle is the quiet period used when Config.Settle is zero.
// Shapefile sidecars are written after the .shp, so it is generous.
const DefaultSettle = 2 * time.Second

// shapefileSidecars are the companion files whose changes are reported
// against the .shp they belong to.
var shapefileSidecars = []string{".dbf", ".shx", ".prj", ".cpg"}

// ChangeKind tells whether a region file is ready to read or gone.
type ChangeKind int

// Change kinds.
const (
	RegionUpdated ChangeKind = iota + 1
	RegionRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case RegionUpdated:
		return "updated"
	case RegionRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is a settled change to one region file.
type Change struct {
	Region string
	Kind   ChangeKind
}

// Handler receives settled changes. It runs on its own goroutine.
type Handler func(ctx context.Context, change Change) error

// Config holds watcher configuration.
type Config struct {
	Dirs    []string
	Settle  time.Duration                              // Quiet period after the last event, defaults to DefaultSettle
	Resolve func(path string) (region string, ok bool) // Maps an event path to its region file, defaults to RegionPath
}

type pendingChange struct {
	kind  ChangeKind
	seq   uint64
	timer *time.Timer
}

// Watcher coalesces file system events per region file and reports each
// region once its files have been quiet for the settle period.
type Watcher struct {
	fs      *fsnotify.Watcher
	handle  Handler
	logger  *slog.Logger
	dirs    []string
	settle  time.Duration
	resolve func(string) (string, bool)

	mu      sync.Mutex
	ctx     context.Context
	pending map[string]*pendingChange
	stopped bool
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config, handle Handler, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Resolve == nil {
		cfg.Resolve = RegionPath
	}

	return &Watcher{
		fs:      fsw,
		handle:  handle,
		logger:  logger,
		dirs:    cfg.Dirs,
		settle:  cfg.Settle,
		resolve: cfg.Resolve,
		ctx:     context.Background(),
		pending: make(map[string]*pendingChange),
	}, nil
}

// RegionPath returns the region file an event on path affects: the path
// itself for region files, or the matching .shp for shapefile sidecars.
func RegionPath(path string) (string, bool) {
	if vector.IsRegionFile(path) {
		return path, true
	}
	ext := filepath.Ext(path)
	if slices.Contains(shapefileSidecars, strings.ToLower(ext)) {
		return strings.TrimSuffix(path, ext) + ".shp", true
	}
	return "", false
}

// Start watches the configured directories until ctx ends or Stop is
// called. Directories that cannot be watched are logged and skipped; it
// fails only when none can be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	var watched int
	for _, dir := range w.dirs {
		abs, err := filepath.Abs(dir)
		if err == nil {
			err = w.fs.Add(abs)
		}
		if err != nil {
			w.logger.Warn("cannot watch region directory", "dir", dir, "error", err)
			continue
		}
		watched++
		w.logger.Info("watching region directory", "dir", abs)
	}
	if len(w.dirs) > 0 && watched == 0 {
		return fmt.Errorf("none of %d region directories can be watched", len(w.dirs))
	}

	go w.run(ctx)
	return nil
}

// Stop cancels pending changes and releases the file watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	for region, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, region)
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.observe(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("region watcher error", "error", err)
		}
	}
}

// observe records an event and restarts the settle timer of its region.
func (w *Watcher) observe(ev fsnotify.Event) {
	region, ok := w.resolve(ev.Name)
	if !ok {
		return
	}
	gone := ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename)
	w.logger.Debug("region file event", "path", ev.Name, "region", region, "op", ev.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	p := w.pending[region]
	if p == nil {
		p = &pendingChange{}
		w.pending[region] = p
	} else {
		p.timer.Stop()
	}

	switch {
	case gone && ev.Name == region:
		p.kind = RegionRemoved
	case p.kind == RegionRemoved && ev.Name != region:
		// A sidecar event does not bring back a removed .shp.
	default:
		p.kind = RegionUpdated
	}

	p.seq++
	seq := p.seq
	p.timer = time.AfterFunc(w.settle, func() { w.fire(region, seq) })
}

// fire reports the change of region unless a later event superseded it.
func (w *Watcher) fire(region string, seq uint64) {
	w.mu.Lock()
	p := w.pending[region]
	if w.stopped || p == nil || p.seq != seq {
		w.mu.Unlock()
		return
	}
	delete(w.pending, region)
	change := Change{Region: region, Kind: p.kind}
	ctx := w.ctx
	w.mu.Unlock()

	w.logger.Info("region changed", "region", region, "change", change.Kind.String())
	if err := w.handle(ctx, change); err != nil {
		w.logger.Error("handling region change", "region", region, "change", change.Kind.String(), "error", err)
	}
}
