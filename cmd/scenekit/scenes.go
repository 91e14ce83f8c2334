package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/jobrunner/scenekit/internal/adapters/raster"
	"github.com/jobrunner/scenekit/internal/app"
	"github.com/jobrunner/scenekit/internal/application"
	"github.com/jobrunner/scenekit/internal/config"
	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
)

// collectionFlags select an annual collection over a region file.
type collectionFlags struct {
	region             string
	year               int
	sensor             string
	cloudCover         float64
	surfaceReflectance bool
	scaleFactors       bool
	mask               string
}

func (f *collectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.region, "region", "", "region file (.shp, .gpkg, .geojson)")
	_ = cmd.MarkFlagRequired("region")
	f.registerRequest(cmd)
}

// registerRequest registers everything but the region.
func (f *collectionFlags) registerRequest(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.year, "year", 0, "acquisition year")
	cmd.Flags().StringVar(&f.sensor, "sensor", string(domain.SensorS2), "sensor ("+strings.Join(domain.OpticalSensorNames(), ", ")+")")
	cmd.Flags().Float64Var(&f.cloudCover, "cloud-cover", 0, "exclusive scene cloud cover ceiling in percent")
	cmd.Flags().BoolVar(&f.surfaceReflectance, "sr", true, "surface reflectance instead of top of atmosphere")
	cmd.Flags().BoolVar(&f.scaleFactors, "scale-factors", false, "apply Landsat surface reflectance scale factors")
	cmd.Flags().StringVar(&f.mask, "mask", string(domain.MaskCloudShadow), "cloud mask method (cloudshadow, qa60, probability); Landsat and HLS use cloudshadow")
	_ = cmd.MarkFlagRequired("year")
}

func (f *collectionFlags) request(cmd *cobra.Command) domain.CollectionRequest {
	req := domain.CollectionRequest{
		Year:               f.year,
		Sensor:             domain.Sensor(f.sensor),
		SurfaceReflectance: f.surfaceReflectance,
		ScaleFactors:       f.scaleFactors,
		Mask:               domain.MaskMethod(f.mask),
	}
	if cmd.Flags().Changed("cloud-cover") {
		req.CloudCover = domain.CloudCeiling(f.cloudCover)
	}
	return req
}

// productFlags describe the single image made from a collection.
type productFlags struct {
	collectionFlags
	composite     string
	indices       []string
	resampleCRS   string
	resampleScale float64
	cloudBands    bool
}

func (f *productFlags) register(cmd *cobra.Command) {
	f.collectionFlags.register(cmd)
	f.registerProduct(cmd)
}

func (f *productFlags) registerProduct(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.composite, "composite", string(domain.CompositeMedian), "composite reducer (median, mosaic, first)")
	cmd.Flags().StringSliceVar(&f.indices, "indices", nil, "spectral indices to append ("+strings.Join(application.IndexNames(), ", ")+")")
	cmd.Flags().StringVar(&f.resampleCRS, "resample-crs", "", "reproject the image before download, e.g. "+domain.DefaultResampleCRS)
	cmd.Flags().Float64Var(&f.resampleScale, "resample-scale", domain.DefaultResampleScale, "pixel size for --resample-crs")
	cmd.Flags().BoolVar(&f.cloudBands, "cloud-bands", false, "add Sentinel-2 probability and clouds bands to a best scene")
}

func (f *productFlags) request(cmd *cobra.Command, bestScene bool) (domain.ProductRequest, error) {
	composite, err := domain.ParseComposite(f.composite)
	if err != nil {
		return domain.ProductRequest{}, err
	}
	return domain.ProductRequest{
		Collection:    f.collectionFlags.request(cmd),
		BestScene:     bestScene,
		CloudBands:    f.cloudBands,
		Composite:     composite,
		Indices:       f.indices,
		ResampleCRS:   f.resampleCRS,
		ResampleScale: f.resampleScale,
	}, nil
}

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "List supported sensors",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SENSOR\tFAMILY\tSR COLLECTION\tTOA COLLECTION\tBANDS")
		for _, s := range domain.DefaultCatalog().Sensors() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.Family, s.SRCollection, s.TOACollection, strings.Join(s.OutputBands, ","))
		}
		return w.Flush()
	},
}

var collectionOpts struct {
	collectionFlags
	evaluate bool
	raw      bool
}

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Print the encoded request graph of a masked collection",
	Long: `Builds the cloud and shadow masked collection for a region and prints its
encoded request graph. With --evaluate the scene count is computed remotely.
With --raw the collection is only filtered by region and date.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			req := collectionOpts.request(cmd)

			if collectionOpts.raw {
				coll, err := a.Builder.FromFile(ctx, a.Regions, collectionOpts.region, req.Year, req.Sensor)
				if err != nil {
					return err
				}
				graph, err := expr.Encode(coll)
				if err != nil {
					return err
				}
				return printJSON(graph)
			}

			features, err := a.Reader.ReadFeatures(ctx, collectionOpts.region)
			if err != nil {
				return err
			}
			result, err := a.Scenes.Collection(ctx, features, req, collectionOpts.evaluate)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var scenesOpts collectionFlags

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List the scenes of a masked collection as CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			req := scenesOpts.request(cmd)
			spec, err := a.Scenes.Sensor(req.Sensor)
			if err != nil {
				return err
			}

			region, err := a.Regions.RegionFromFile(ctx, scenesOpts.region)
			if err != nil {
				return err
			}
			coll, err := a.Builder.Resolve(ctx, region, req)
			if err != nil {
				return err
			}

			scenes, err := a.Builder.Scenes(ctx, coll, spec.CloudField)
			if err != nil {
				return err
			}
			return gocsv.Marshal(scenes, os.Stdout)
		})
	},
}

var downloadOpts struct {
	productFlags
	name   string
	noData float64
}

func registerDownloadFlags(cmd *cobra.Command) {
	downloadOpts.register(cmd)
	cmd.Flags().StringVar(&downloadOpts.name, "name", "", "output file name (default <region>_<sensor>_<year>.tif)")
	cmd.Flags().Float64Var(&downloadOpts.noData, "nodata", 0, "stamp this no-data value on the written file")
}

func runDownload(bestScene bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			product, err := downloadOpts.request(cmd, bestScene)
			if err != nil {
				return err
			}

			dl := a.DownloadDefaults()
			dl.Name = downloadOpts.name
			if dl.Name == "" {
				dl.Name = application.OutputName(downloadOpts.region, product.Collection)
			}

			features, err := a.Reader.ReadFeatures(ctx, downloadOpts.region)
			if err != nil {
				return err
			}

			res, err := a.Scenes.Download(ctx, features, product, dl)
			if err != nil {
				return err
			}
			if !res.Written {
				fmt.Printf("%s\tskipped\t%v\n", res.Path, res.Failure)
				return nil
			}

			if cmd.Flags().Changed("nodata") {
				if err := a.Exporter.SetNoData(res.Path, downloadOpts.noData); err != nil {
					return err
				}
			}

			fmt.Printf("%s\t%d bytes\t%s\n", res.Path, res.Bytes, strings.Join(res.Bands, ","))
			return nil
		})
	}
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a composite of the masked collection",
	Args:  cobra.NoArgs,
	RunE:  runDownload(false),
}

var bestSceneCmd = &cobra.Command{
	Use:   "best-scene",
	Short: "Download the least cloudy scene of the year",
	Args:  cobra.NoArgs,
	RunE:  runDownload(true),
}

var noDataCmd = &cobra.Command{
	Use:   "nodata <file> <value>",
	Short: "Set the no-data value on every band of a raster",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid no-data value %q: %w", args[1], err)
		}
		return localExporter().SetNoData(args[0], value)
	},
}

var bandNamesCmd = &cobra.Command{
	Use:   "band-names <file> [name...]",
	Short: "Print or set the band descriptions of a raster",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if len(args) > 1 {
			return localExporter().SetBandNames(args[0], args[1:])
		}
		names, err := raster.NewGDAL().BandNames(args[0])
		if err != nil {
			return err
		}
		for i, n := range names {
			fmt.Printf("%d\t%s\n", i+1, n)
		}
		return nil
	},
}

// localExporter returns an exporter that only touches local rasters.
func localExporter() *application.RasterExporter {
	logger := app.NewLogger(config.LoggingConfig{
		Level:  v.GetString("logging.level"),
		Format: v.GetString("logging.format"),
	})
	return application.NewRasterExporter(nil, nil, raster.NewGDAL(), nil, logger, application.ExporterConfig{})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	collectionOpts.register(collectionCmd)
	collectionCmd.Flags().BoolVar(&collectionOpts.evaluate, "evaluate", false, "evaluate the scene count remotely")
	collectionCmd.Flags().BoolVar(&collectionOpts.raw, "raw", false, "filter by region and date only, without masking")

	scenesOpts.register(scenesCmd)

	registerDownloadFlags(downloadCmd)
	registerDownloadFlags(bestSceneCmd)
}
