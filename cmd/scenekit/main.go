// Package main provides the entry point for the scenekit command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jobrunner/scenekit/internal/app"
	"github.com/jobrunner/scenekit/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgFile string
	envFile string
	v       = config.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scenekit",
	Short: "scenekit - annual satellite scene collections and downloads",
	Long: `scenekit builds cloud and shadow masked annual image collections for
Sentinel-2, Landsat 4-9 and HLS over vector regions, evaluates them on the
remote image service and downloads the results as GeoTIFF.

Features:
  - Regions from shapefile, GeoPackage and GeoJSON
  - Sentinel-2 cloud probability and shadow projection masking
  - QA bit masking for Landsat and HLS
  - Spectral indices (NDVI, NDWI, MNDWI, NDMI, AWEI)
  - Local downloads with band names and no-data stamping
  - Batch manifests, region directory watch and an HTTP API
  - Publishing to local disk, AWS S3 or Azure Blob Storage
  - Prometheus metrics`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadEnv(envFile)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("scenekit %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file with credentials")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.String("project", "", "remote service cloud project")
	flags.String("folder", ".", "output folder for downloads")
	flags.String("crs", "EPSG:4326", "output CRS for downloads")
	flags.Float64("scale", 30, "output pixel size in CRS units")
	flags.Bool("progress", false, "show download progress")
	flags.String("storage-type", "none", "publish downloads to (none, local, s3, azure)")
	flags.Bool("ledger", false, "record downloads and export tasks")

	// Bind flags to viper
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("earthengine.project", flags.Lookup("project"))
	_ = v.BindPFlag("export.folder", flags.Lookup("folder"))
	_ = v.BindPFlag("export.crs", flags.Lookup("crs"))
	_ = v.BindPFlag("export.scale", flags.Lookup("scale"))
	_ = v.BindPFlag("export.progress", flags.Lookup("progress"))
	_ = v.BindPFlag("storage.type", flags.Lookup("storage-type"))
	_ = v.BindPFlag("ledger.enabled", flags.Lookup("ledger"))

	rootCmd.AddCommand(
		versionCmd,
		sensorsCmd,
		collectionCmd,
		scenesCmd,
		bestSceneCmd,
		downloadCmd,
		noDataCmd,
		bandNamesCmd,
		exportCmd,
		batchCmd,
		watchCmd,
		serveCmd,
		historyCmd,
	)
}

// loadEnv loads a dotenv file; a missing file is ignored.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadConfig loads the configuration and sets up the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := app.NewLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withApp loads the configuration, wires the application and runs fn.
// The application is closed afterwards, which flushes the metrics textfile.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var progress io.Writer
	if cfg.Export.Progress {
		progress = os.Stderr
	}

	a, err := app.New(ctx, cfg, logger, app.Options{Progress: progress})
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	runErr := fn(ctx, a)
	if err := a.Close(); err != nil {
		logger.Error("closing application", "error", err)
	}
	return runErr
}
