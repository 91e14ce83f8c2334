package domain

// Scene properties and band names used by the masking pipelines.
const (
	PropertyIndex        = "system:index"
	PropertyTimeStart    = "system:time_start"
	PropertySolarAzimuth = "MEAN_SOLAR_AZIMUTH_ANGLE"
	PropertyCloudMask    = "cloud_mask"
	BandCloudProbability = "probability"
	BandClouds           = "clouds"
	BandDarkPixels       = "dark_pixels"
	BandCloudTransform   = "cloud_transform"
	BandShadows          = "shadows"
	BandCloudMask        = "cloudmask"
	BandSentinel2QA      = "QA60"
	BandSentinel2NIR     = "B8"
)

// CollectionRequest selects an annual image collection for a region.
type CollectionRequest struct {
	Year               int
	Sensor             Sensor
	CloudCover         *float64 // Exclusive ceiling on the sensor cloud field, nil disables filtering
	SurfaceReflectance bool     // Surface reflectance instead of top of atmosphere
	ScaleFactors       bool     // Landsat surface reflectance scaling, applied before renaming
	Mask               MaskMethod
}

// Validate checks the request fields that do not need the catalog.
func (r CollectionRequest) Validate() error {
	if err := ValidateYear(r.Year); err != nil {
		return err
	}
	if _, err := ParseMaskMethod(string(r.Mask)); err != nil {
		return err
	}
	if r.CloudCover != nil && (*r.CloudCover < 0 || *r.CloudCover > 100) {
		return &ValidationError{
			Field:      "cloud_cover",
			Value:      *r.CloudCover,
			Constraint: "[0, 100]",
			Message:    "cloud cover is a percentage",
		}
	}
	return nil
}

// CloudCeiling returns a pointer to v, for building requests.
func CloudCeiling(v float64) *float64 {
	return &v
}

// ProductRequest describes the single image produced from a collection.
type ProductRequest struct {
	Collection    CollectionRequest
	BestScene     bool      // Least cloudy scene instead of a composite
	CloudBands    bool      // Add probability and clouds bands to a Sentinel-2 best scene
	Composite     Composite // Reducer used when BestScene is false
	Indices       []string  // Spectral indices appended to the image
	ResampleCRS   string    // Reproject the final image when set
	ResampleScale float64
}

// Default resampling grid.
const (
	DefaultResampleCRS   = "EPSG:2193"
	DefaultResampleScale = 20.0
)
