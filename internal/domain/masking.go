package domain

import "fmt"

// JoinPolicy decides what happens to Sentinel-2 scenes that have no
// matching cloud probability scene.
type JoinPolicy string

// Join policies.
const (
	JoinDrop        JoinPolicy = "drop"        // inner join, unmatched scenes are removed
	JoinPassThrough JoinPolicy = "passthrough" // outer join, unmatched scenes stay unmasked
	JoinError       JoinPolicy = "error"       // unmatched scenes fail the request
)

// ParseJoinPolicy parses a join policy name. The empty string maps to JoinDrop.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch JoinPolicy(s) {
	case "", JoinDrop:
		return JoinDrop, nil
	case JoinPassThrough:
		return JoinPassThrough, nil
	case JoinError:
		return JoinError, nil
	default:
		return "", &ValidationError{
			Field:      "join_policy",
			Value:      s,
			Constraint: "drop|passthrough|error",
			Message:    fmt.Sprintf("unknown join policy %q", s),
		}
	}
}

// MaskMethod selects how cloudy pixels are removed from a collection.
type MaskMethod string

// Mask methods. Only MaskCloudShadow applies to Landsat and HLS, where it
// reads the quality band bits.
const (
	MaskCloudShadow MaskMethod = "cloudshadow" // cloud probability plus projected shadows
	MaskQA60        MaskMethod = "qa60"        // Sentinel-2 QA60 opaque cloud and cirrus bits
	MaskProbability MaskMethod = "probability" // Sentinel-2 cloud probability threshold only
)

// ParseMaskMethod parses a mask method name. The empty string maps to
// MaskCloudShadow.
func ParseMaskMethod(s string) (MaskMethod, error) {
	switch MaskMethod(s) {
	case "", MaskCloudShadow:
		return MaskCloudShadow, nil
	case MaskQA60:
		return MaskQA60, nil
	case MaskProbability:
		return MaskProbability, nil
	default:
		return "", &ValidationError{
			Field:      "mask",
			Value:      s,
			Constraint: "cloudshadow|qa60|probability",
			Message:    fmt.Sprintf("unknown mask method %q", s),
		}
	}
}

// NeedsCloudProbability reports whether Sentinel-2 scenes must be joined
// with the cloud probability collection before masking.
func (m MaskMethod) NeedsCloudProbability() bool {
	return m != MaskQA60
}

// MaskParams holds the Sentinel-2 cloud/shadow masking constants.
type MaskParams struct {
	CloudProbabilityThreshold float64 // probability above which a pixel is cloud
	NIRDarkThreshold          float64 // reflectance below which NIR is dark
	ReflectanceScale          float64 // integer encoding scale of reflectance
	ShadowProjectionDistance  float64 // directional distance transform length
	ShadowProjectionScale     float64 // working resolution of the projection, metres
	ErosionRadius             float64 // focal min radius, pixels
	BufferMeters              float64 // cloud edge dilation, metres
	CleanScale                float64 // working resolution of the cleaned mask, metres
	JoinPolicy                JoinPolicy
}

// DefaultMaskParams returns the standard masking parameters.
func DefaultMaskParams() MaskParams {
	return MaskParams{
		CloudProbabilityThreshold: 60,
		NIRDarkThreshold:          0.15,
		ReflectanceScale:          1e4,
		ShadowProjectionDistance:  10,
		ShadowProjectionScale:     100,
		ErosionRadius:             2,
		BufferMeters:              50,
		CleanScale:                20,
		JoinPolicy:                JoinDrop,
	}
}

// DilationRadius returns the focal max radius in pixels at CleanScale.
func (p MaskParams) DilationRadius() float64 {
	return p.BufferMeters * 2 / p.CleanScale
}
