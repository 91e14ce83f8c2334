// Package domain contains the core business entities and value objects.
package domain

import "sort"

// Sensor identifies an imaging sensor, e.g. "S2" or "LS8".
type Sensor string

// Known sensors.
const (
	SensorS2     Sensor = "S2"
	SensorLS4    Sensor = "LS4"
	SensorLS5    Sensor = "LS5"
	SensorLS7    Sensor = "LS7"
	SensorLS8    Sensor = "LS8"
	SensorLS9    Sensor = "LS9"
	SensorHLSL30 Sensor = "HLSl30"
	SensorS1     Sensor = "S1"
)

// Family groups sensors that share a masking pipeline.
type Family string

// Sensor families.
const (
	FamilySentinel2 Family = "sentinel2"
	FamilyLandsat   Family = "landsat"
	FamilyHLS       Family = "hls"
	FamilySAR       Family = "sar"
)

// Cloud metadata fields used for scene-level cloud filtering.
const (
	CloudFieldSentinel2 = "CLOUDY_PIXEL_PERCENTAGE"
	CloudFieldHLS       = "CLOUD_COVERAGE"
	CloudFieldLandsat   = "CLOUD_COVER"
)

// Auxiliary collection with per-scene cloud probability for Sentinel-2.
const CloudProbabilityCollection = "COPERNICUS/S2_CLOUD_PROBABILITY"

var canonicalBands = []string{"blue", "green", "red", "RE1", "RE2", "RE3", "NIR", "RE4", "SWIR1", "SWIR2"}

// CanonicalBandNames returns the full canonical output band set. Sensors
// without red-edge bands use the subset returned by SixBandNames.
func CanonicalBandNames() []string {
	return append([]string(nil), canonicalBands...)
}

// SixBandNames returns blue, green, red, NIR, SWIR1, SWIR2.
func SixBandNames() []string {
	names := make([]string, 0, 6)
	names = append(names, canonicalBands[:3]...)
	names = append(names, canonicalBands[6:7]...)
	names = append(names, canonicalBands[len(canonicalBands)-2:]...)
	return names
}

// QABits describes the quality band bits decoded by the QA mask.
type QABits struct {
	Band         string // Quality band name
	Cloud        uint   // Bit set for cloud
	CloudShadow  uint   // Bit set for cloud shadow
	DilatedCloud uint   // Bit set for dilated/adjacent cloud
}

// SensorSpec is the read-only catalog entry for a sensor.
type SensorSpec struct {
	ID            Sensor
	Family        Family
	Bands         []string // Native band names (top-of-atmosphere)
	SRBands       []string // Surface reflectance band names (nil when identical to Bands)
	SRCollection  string
	TOACollection string
	OutputBands   []string // Canonical names, same length as Bands
	CloudField    string   // Scene metadata field with cloud percentage
	QA            QABits   // Quality bits for QA-based masking (unused for Sentinel-2)
	TwoYearWindow bool     // Annual interval spans two calendar years
}

// IsOptical returns true if the sensor produces optical imagery.
func (s SensorSpec) IsOptical() bool {
	return s.Family != FamilySAR
}

// Collection returns the collection id for the requested processing level.
func (s SensorSpec) Collection(surfaceReflectance bool) string {
	if surfaceReflectance || s.TOACollection == "" {
		return s.SRCollection
	}
	return s.TOACollection
}

// BandsFor returns the native band names for the requested processing level.
func (s SensorSpec) BandsFor(surfaceReflectance bool) []string {
	if surfaceReflectance && s.SRBands != nil {
		return append([]string(nil), s.SRBands...)
	}
	return append([]string(nil), s.Bands...)
}

var landsatQA = QABits{Band: "QA_PIXEL", Cloud: 3, CloudShadow: 4, DilatedCloud: 1}

// Catalog is a read-only sensor lookup table.
type Catalog struct {
	specs map[Sensor]SensorSpec
}

// NewCatalog creates a catalog from the given entries.
func NewCatalog(specs ...SensorSpec) *Catalog {
	c := &Catalog{specs: make(map[Sensor]SensorSpec, len(specs))}
	for _, s := range specs {
		c.specs[s.ID] = s
	}
	return c
}

// DefaultCatalog returns the built-in sensor catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

var defaultCatalog = NewCatalog(
	SensorSpec{
		ID:            SensorS2,
		Family:        FamilySentinel2,
		Bands:         []string{"B2", "B3", "B4", "B5", "B6", "B7", "B8", "B8A", "B11", "B12"},
		SRCollection:  "COPERNICUS/S2_SR_HARMONIZED",
		TOACollection: "COPERNICUS/S2_HARMONIZED",
		OutputBands:   CanonicalBandNames(),
		CloudField:    CloudFieldSentinel2,
	},
	SensorSpec{
		ID:            SensorLS4,
		Family:        FamilyLandsat,
		Bands:         []string{"B1", "B2", "B3", "B4", "B5", "B7"},
		SRBands:       []string{"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B7"},
		SRCollection:  "LANDSAT/LT04/C02/T1_L2",
		TOACollection: "LANDSAT/LT04/C02/T1_TOA",
		OutputBands:   SixBandNames(),
		CloudField:    CloudFieldLandsat,
		QA:            landsatQA,
		// The LS4 archive is sparse between 1988 and 1990.
		TwoYearWindow: true,
	},
	SensorSpec{
		ID:            SensorLS5,
		Family:        FamilyLandsat,
		Bands:         []string{"B1", "B2", "B3", "B4", "B5", "B7"},
		SRBands:       []string{"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B7"},
		SRCollection:  "LANDSAT/LT05/C02/T1_L2",
		TOACollection: "LANDSAT/LT05/C02/T1_TOA",
		OutputBands:   SixBandNames(),
		CloudField:    CloudFieldLandsat,
		QA:            landsatQA,
	},
	SensorSpec{
		ID:            SensorLS7,
		Family:        FamilyLandsat,
		Bands:         []string{"B1", "B2", "B3", "B4", "B5", "B7"},
		SRBands:       []string{"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B7"},
		SRCollection:  "LANDSAT/LE07/C02/T1_L2",
		TOACollection: "LANDSAT/LE07/C02/T1_TOA",
		OutputBands:   SixBandNames(),
		CloudField:    CloudFieldLandsat,
		QA:            landsatQA,
	},
	SensorSpec{
		ID:            SensorLS8,
		Family:        FamilyLandsat,
		Bands:         []string{"B2", "B3", "B4", "B5", "B6", "B7"},
		SRBands:       []string{"SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B6", "SR_B7"},
		SRCollection:  "LANDSAT/LC08/C02/T1_L2",
		TOACollection: "LANDSAT/LC08/C02/T1_TOA",
		OutputBands:   SixBandNames(),
		CloudField:    CloudFieldLandsat,
		QA:            landsatQA,
	},
	SensorSpec{
		ID:            SensorLS9,
		Family:        FamilyLandsat,
		Bands:         []string{"B2", "B3", "B4", "B5", "B6", "B7"},
		SRBands:       []string{"SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B6", "SR_B7"},
		SRCollection:  "LANDSAT/LC09/C02/T1_L2",
		TOACollection: "LANDSAT/LC09/C02/T1_TOA",
		OutputBands:   SixBandNames(),
		CloudField:    CloudFieldLandsat,
		QA:            landsatQA,
	},
	SensorSpec{
		ID:           SensorHLSL30,
		Family:       FamilyHLS,
		Bands:        []string{"B2", "B3", "B4", "B5", "B6", "B7"},
		SRCollection: "NASA/HLS/HLSL30/v002",
		OutputBands:  SixBandNames(),
		CloudField:   CloudFieldHLS,
		QA:           QABits{Band: "Fmask", Cloud: 1, CloudShadow: 3, DilatedCloud: 2},
	},
	SensorSpec{
		ID:           SensorS1,
		Family:       FamilySAR,
		Bands:        []string{"HH", "HV", "VV", "VH", "angle"},
		SRCollection: "COPERNICUS/S1_GRD",
	},
)

// Lookup returns a copy of the spec for a sensor.
func (c *Catalog) Lookup(id Sensor) (SensorSpec, error) {
	spec, ok := c.specs[id]
	if !ok {
		return SensorSpec{}, &SensorError{Sensor: id}
	}
	return spec.clone(), nil
}

func (s SensorSpec) clone() SensorSpec {
	s.Bands = cloneNames(s.Bands)
	s.SRBands = cloneNames(s.SRBands)
	s.OutputBands = cloneNames(s.OutputBands)
	return s
}

func cloneNames(names []string) []string {
	if names == nil {
		return nil
	}
	return append([]string(nil), names...)
}

// LookupOptical returns the spec for an optical sensor.
func (c *Catalog) LookupOptical(id Sensor) (SensorSpec, error) {
	spec, err := c.Lookup(id)
	if err != nil {
		return SensorSpec{}, err
	}
	if !spec.IsOptical() {
		return SensorSpec{}, &SensorError{Sensor: id}
	}
	return spec, nil
}

// Sensors returns all catalog entries ordered by identifier.
func (c *Catalog) Sensors() []SensorSpec {
	specs := make([]SensorSpec, 0, len(c.specs))
	for _, s := range c.specs {
		specs = append(specs, s.clone())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// OpticalSensorNames returns the identifiers accepted by the collection builder.
func OpticalSensorNames() []string {
	var names []string
	for _, s := range defaultCatalog.Sensors() {
		if s.IsOptical() {
			names = append(names, string(s.ID))
		}
	}
	return names
}
