package application

import "github.com/jobrunner/scenekit/internal/expr"

// Spectral index band names.
const (
	BandNDVI  = "ndvi"
	BandNDWI  = "ndwi"
	BandMNDWI = "mndwi"
	BandNDMI  = "ndmi"
	BandAWEI  = "awei"
)

// The index functions read canonical band names and append one band. They
// do not check that the input bands exist; a missing band fails when the
// graph is evaluated.

// NDVI appends (NIR - red) / (NIR + red).
func NDVI(img expr.Image) expr.Image {
	return appendIndex(img, img.NormalizedDifference("NIR", "red"), BandNDVI)
}

// NDWI appends (green - NIR) / (green + NIR).
func NDWI(img expr.Image) expr.Image {
	return appendIndex(img, img.NormalizedDifference("green", "NIR"), BandNDWI)
}

// MNDWI appends (green - SWIR1) / (green + SWIR1).
func MNDWI(img expr.Image) expr.Image {
	return appendIndex(img, img.NormalizedDifference("green", "SWIR1"), BandMNDWI)
}

// NDMI appends (NIR - SWIR1) / (NIR + SWIR1).
func NDMI(img expr.Image) expr.Image {
	return appendIndex(img, img.NormalizedDifference("NIR", "SWIR1"), BandNDMI)
}

// AWEI appends 4*(green - SWIR1) - (0.25*NIR + 2.75*SWIR2).
func AWEI(img expr.Image) expr.Image {
	water := expr.Scalar(4).Multiply(img.Select("green").Subtract(img.Select("SWIR1")))
	shadow := expr.Scalar(0.25).Multiply(img.Select("NIR")).
		Add(expr.Scalar(2.75).Multiply(img.Select("SWIR2")))
	return appendIndex(img, water.Subtract(shadow), BandAWEI)
}

func appendIndex(img, index expr.Image, name string) expr.Image {
	return img.AddBands(index.SelectIndex(0).Rename(name), false)
}

// IndexFunc returns the index function for a band name, or nil.
func IndexFunc(name string) func(expr.Image) expr.Image {
	switch name {
	case BandNDVI:
		return NDVI
	case BandNDWI:
		return NDWI
	case BandMNDWI:
		return MNDWI
	case BandNDMI:
		return NDMI
	case BandAWEI:
		return AWEI
	default:
		return nil
	}
}

// IndexNames lists the supported spectral indices.
func IndexNames() []string {
	return []string{BandNDVI, BandNDWI, BandMNDWI, BandNDMI, BandAWEI}
}
