// Package raster patches metadata of local raster files with GDAL.
package raster

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/jobrunner/scenekit/internal/domain"
)

var registerOnce sync.Once

// GDAL implements output.RasterMetadata.
type GDAL struct{}

// NewGDAL creates the adapter and registers the GDAL drivers.
func NewGDAL() *GDAL {
	registerOnce.Do(godal.RegisterAll)
	return &GDAL{}
}

// SetBandNames writes names as band descriptions, in band order. Bands
// beyond the end of names keep their description.
func (g *GDAL) SetBandNames(path string, names []string) error {
	return update(path, func(ds *godal.Dataset) error {
		bands := ds.Bands()
		if len(names) > len(bands) {
			return &domain.ValidationError{
				Field:      "band_names",
				Value:      len(names),
				Constraint: fmt.Sprintf("<= %d", len(bands)),
				Message:    fmt.Sprintf("could not open band %d of %s", len(bands)+1, path),
			}
		}
		for i, name := range names {
			if err := bands[i].SetDescription(name); err != nil {
				return fmt.Errorf("setting description of band %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// SetNoData sets the no-data value of every band.
func (g *GDAL) SetNoData(path string, value float64) error {
	return update(path, func(ds *godal.Dataset) error {
		for i, band := range ds.Bands() {
			if err := band.SetNoData(value); err != nil {
				return fmt.Errorf("setting no-data of band %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// BandNames returns the band descriptions.
func (g *GDAL) BandNames(path string) ([]string, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	bands := ds.Bands()
	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = b.Description()
	}
	return names, nil
}

func update(path string, fn func(*godal.Dataset) error) error {
	ds, err := godal.Open(path, godal.Update(), godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("opening %s for update: %w", path, err)
	}

	if err := fn(ds); err != nil {
		_ = ds.Close()
		return err
	}

	if err := ds.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
