package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobrunner/scenekit/internal/adapters/ledger"
	"github.com/jobrunner/scenekit/internal/app"
	"github.com/jobrunner/scenekit/internal/application"
	"github.com/jobrunner/scenekit/internal/domain"
)

var exportOpts struct {
	productFlags
	bestScene   bool
	destination string
	bucket      string
	driveFolder string
	prefix      string
	description string
	maxPixels   int64
	noWait      bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Start a remote export task and wait for it to finish",
	Long: `Starts a batch export of the product to Google Drive or Cloud Storage and
polls the task until it succeeds, fails or is cancelled. With --no-wait the
task name is printed right after the task started.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			product, err := exportOpts.request(cmd, exportOpts.bestScene)
			if err != nil {
				return err
			}

			region, err := a.Regions.RegionFromFile(ctx, exportOpts.region)
			if err != nil {
				return err
			}
			img, err := a.Scenes.Product(ctx, region, product)
			if err != nil {
				return err
			}

			description := exportOpts.description
			if description == "" {
				description = strings.TrimSuffix(application.OutputName(exportOpts.region, product.Collection), ".tif")
			}

			task, err := a.Exporter.StartExport(ctx, img, region, domain.ExportRequest{
				Description: description,
				Destination: domain.ExportDestination(exportOpts.destination),
				Folder:      exportOpts.driveFolder,
				Bucket:      exportOpts.bucket,
				Prefix:      exportOpts.prefix,
				CRS:         a.Config.Export.CRS,
				Scale:       a.Config.Export.Scale,
				Format:      a.Config.Export.Format,
				MaxPixels:   exportOpts.maxPixels,
			})
			if err != nil {
				return err
			}
			if exportOpts.noWait {
				fmt.Println(task.Name)
				return nil
			}

			task, err = a.Exporter.RunTask(ctx, task)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", task.Name, task.State)
			return nil
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Run the downloads of a YAML manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		manifest, err := application.LoadManifest(args[0])
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, a *app.App) error {
			results, runErr := a.NewBatchRunner().Run(ctx, manifest)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tSTATUS\tPATH\tBYTES")
			for _, r := range results {
				switch {
				case r.Err != nil:
					fmt.Fprintf(w, "%s\tfailed\t\t\n", r.Name)
				case r.Result == nil:
					fmt.Fprintf(w, "%s\tcancelled\t\t\n", r.Name)
				case !r.Result.Written:
					fmt.Fprintf(w, "%s\tskipped\t%s\t\n", r.Name, r.Result.Path)
				default:
					fmt.Fprintf(w, "%s\twritten\t%s\t%d\n", r.Name, r.Result.Path, r.Result.Bytes)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return runErr
		})
	},
}

var watchOpts productFlags

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Download a product for every region file dropped into a directory",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			v.Set("watch.paths", args)
		}

		return withApp(func(ctx context.Context, a *app.App) error {
			if len(a.Config.Watch.Paths) == 0 {
				return &domain.ConfigError{Field: "watch.paths", Message: "at least one directory is required"}
			}

			product, err := watchOpts.request(cmd, false)
			if err != nil {
				return err
			}
			if err := a.EnableWatch(product); err != nil {
				return err
			}

			a.Logger.Info("watching region directories", "paths", a.Config.Watch.Paths)
			if err := a.Start(ctx); err != nil {
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.Shutdown(shutdownCtx)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			a.EnableServer()

			a.Logger.Info("starting scenekit",
				"version", version,
				"host", a.Config.Server.Host,
				"port", a.Config.Server.Port,
				"storage_type", a.Config.Storage.Type,
			)

			// Start server in background
			serverErr := make(chan error, 1)
			go func() {
				if err := a.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for shutdown signal or server error
			var runErr error
			select {
			case <-ctx.Done():
				a.Logger.Info("received shutdown signal")
			case runErr = <-serverErr:
				a.Logger.Error("server error", "error", runErr)
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
			defer cancel()

			if err := a.Shutdown(shutdownCtx); err != nil {
				a.Logger.Error("shutdown error", "error", err)
				return errors.Join(runErr, err)
			}

			a.Logger.Info("server stopped")
			return runErr
		})
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent downloads and export tasks from the ledger",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		l, err := ledger.Open(ctx, cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer func() { _ = l.Close() }()

		entries, err := l.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UPDATED\tKIND\tSTATE\tNAME\tMESSAGE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.UpdatedAt.Local().Format(time.DateTime), e.Kind, e.State, e.Name, e.Message)
		}
		return w.Flush()
	},
}

func init() {
	exportOpts.register(exportCmd)
	exportCmd.Flags().BoolVar(&exportOpts.bestScene, "best-scene", false, "export the least cloudy scene instead of a composite")
	exportCmd.Flags().StringVar(&exportOpts.destination, "destination", string(domain.DestinationDrive), "export destination (drive, gcs)")
	exportCmd.Flags().StringVar(&exportOpts.bucket, "bucket", "", "Cloud Storage bucket for --destination gcs")
	exportCmd.Flags().StringVar(&exportOpts.driveFolder, "drive-folder", "", "Drive folder for --destination drive")
	exportCmd.Flags().StringVar(&exportOpts.prefix, "prefix", "", "output file name prefix")
	exportCmd.Flags().StringVar(&exportOpts.description, "description", "", "task description (default <region>_<sensor>_<year>)")
	exportCmd.Flags().Int64Var(&exportOpts.maxPixels, "max-pixels", 1e13, "maximum number of pixels to export")
	exportCmd.Flags().BoolVar(&exportOpts.noWait, "no-wait", false, "return after the task started")

	// Watch flags; the region comes from the watched files.
	watchOpts.registerRequest(watchCmd)
	watchOpts.registerProduct(watchCmd)
	watchCmd.Flags().Duration("cooldown", time.Minute, "minimum time between runs for the same region")
	_ = v.BindPFlag("watch.cooldown", watchCmd.Flags().Lookup("cooldown"))

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8080, "server port")
	serveCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	serveCmd.Flags().Bool("metrics", false, "serve Prometheus metrics")
	_ = v.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("server.cors.allowed_origins", serveCmd.Flags().Lookup("cors"))
	_ = v.BindPFlag("metrics.enabled", serveCmd.Flags().Lookup("metrics"))

	// Batch flags
	batchCmd.Flags().Int("concurrency", 4, "parallel downloads")
	_ = v.BindPFlag("batch.concurrency", batchCmd.Flags().Lookup("concurrency"))

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "number of entries")
}
