package output

import "context"

// RasterMetadata defines the secondary port for editing local raster files.
type RasterMetadata interface {
	// SetBandNames writes one description per band, in band order.
	SetBandNames(path string, names []string) error

	// SetNoData sets the no-data value of every band.
	SetNoData(path string, value float64) error

	// BandNames returns the band descriptions of a raster.
	BandNames(path string) ([]string, error)
}

// Fetcher defines the secondary port for streaming a URL to a local file.
type Fetcher interface {
	// Fetch writes the body of url to dest and returns the bytes written.
	// Non-2xx responses return a *domain.DownloadError and leave no file.
	Fetch(ctx context.Context, url, dest string) (int64, error)
}
