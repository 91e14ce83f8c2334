package application

import (
	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
)

// Sentinel-2 QA60 bits.
const (
	qa60CloudBit  = 10
	qa60CirrusBit = 11
)

// Landsat collection 2 surface reflectance scaling.
const (
	opticalScale  = 0.0000275
	opticalOffset = -0.2
	thermalScale  = 0.00341802
	thermalOffset = 149.0
)

// CloudShadowMasker builds the cloud and shadow masking graphs.
//
// Sentinel-2 scenes go through four stages: join with the cloud
// probability collection, cloud band derivation, shadow band derivation,
// then combine and clean. Landsat and HLS scenes are masked from their
// quality band bits in a single stage.
type CloudShadowMasker struct {
	params domain.MaskParams
}

// NewCloudShadowMasker creates a masker using params.
func NewCloudShadowMasker(params domain.MaskParams) *CloudShadowMasker {
	return &CloudShadowMasker{params: params}
}

// Params returns the masking parameters.
func (m *CloudShadowMasker) Params() domain.MaskParams {
	return m.params
}

// MaskFunc returns the per-image masking function for a sensor family and
// mask method. Landsat and HLS support only the default method.
func (m *CloudShadowMasker) MaskFunc(spec domain.SensorSpec, method domain.MaskMethod) (func(expr.Image) expr.Image, error) {
	method, err := domain.ParseMaskMethod(string(method))
	if err != nil {
		return nil, err
	}

	switch spec.Family {
	case domain.FamilySentinel2:
		switch method {
		case domain.MaskQA60:
			return MaskQA60, nil
		case domain.MaskProbability:
			return m.joined(ProbabilityMask(m.params.CloudProbabilityThreshold)), nil
		default:
			return m.joined(func(img expr.Image) expr.Image {
				return ApplyCloudShadowMask(m.AddCloudShadowMask(img))
			}), nil
		}
	case domain.FamilyLandsat, domain.FamilyHLS:
		if method != domain.MaskCloudShadow {
			return nil, &domain.ValidationError{
				Field:      "mask",
				Value:      string(method),
				Constraint: string(domain.MaskCloudShadow),
				Message:    string(spec.ID) + " is masked from its quality band",
			}
		}
		return QAMask(spec.QA), nil
	default:
		return nil, &domain.SensorError{Sensor: spec.ID, Reason: "no cloud masking for " + string(spec.Family)}
	}
}

// MaskCollection masks every scene of coll. Sentinel-2 scenes are first
// joined with cloud probability when the method reads it; scenes without a
// match are dropped, or kept unmasked when the join policy is passthrough.
func (m *CloudShadowMasker) MaskCollection(coll expr.ImageCollection, spec domain.SensorSpec, method domain.MaskMethod, region expr.Expression, interval domain.DateInterval) (expr.ImageCollection, error) {
	mask, err := m.MaskFunc(spec, method)
	if err != nil {
		return expr.ImageCollection{}, err
	}
	if spec.Family == domain.FamilySentinel2 && method.NeedsCloudProbability() {
		coll = m.JoinCloudProbability(coll, region, interval)
	}
	return coll.Map(mask), nil
}

// joined wraps a mask reading the cloud_mask property so that, under the
// passthrough policy, scenes without a probability match stay unmasked.
func (m *CloudShadowMasker) joined(mask func(expr.Image) expr.Image) func(expr.Image) expr.Image {
	if m.params.JoinPolicy != domain.JoinPassThrough {
		return mask
	}
	return func(img expr.Image) expr.Image {
		return expr.AsImage(expr.If(img.Get(domain.PropertyCloudMask), mask(img), img))
	}
}

// JoinCloudProbability attaches the matching cloud probability image to
// each scene under the cloud_mask property, matched on system:index.
func (m *CloudShadowMasker) JoinCloudProbability(coll expr.ImageCollection, region expr.Expression, interval domain.DateInterval) expr.ImageCollection {
	outer := m.params.JoinPolicy == domain.JoinPassThrough
	return expr.SaveFirst(domain.PropertyCloudMask, outer).Apply(coll, m.probability(region, interval), indexMatch())
}

// UnjoinedScenes returns the scenes of coll that have no cloud probability
// match.
func (m *CloudShadowMasker) UnjoinedScenes(coll expr.ImageCollection, region expr.Expression, interval domain.DateInterval) expr.ImageCollection {
	return expr.Inverted().Apply(coll, m.probability(region, interval), indexMatch())
}

func (m *CloudShadowMasker) probability(region expr.Expression, interval domain.DateInterval) expr.ImageCollection {
	return expr.LoadCollection(domain.CloudProbabilityCollection).
		FilterBounds(region).
		FilterDate(interval.StartDate(), interval.EndDate())
}

func indexMatch() expr.Filter {
	return expr.FieldsEqual(domain.PropertyIndex, domain.PropertyIndex)
}

// AddCloudBands adds the joined "probability" band and a boolean "clouds"
// band where probability exceeds the threshold.
func (m *CloudShadowMasker) AddCloudBands(img expr.Image) expr.Image {
	prob := expr.AsImage(img.Get(domain.PropertyCloudMask)).Select(domain.BandCloudProbability)
	return m.cloudBands(img, prob)
}

// AddSceneCloudBands derives the cloud bands of a lone scene by loading
// its probability image directly instead of through a join.
func (m *CloudShadowMasker) AddSceneCloudBands(img expr.Image, sceneID string) expr.Image {
	prob := expr.LoadImage(domain.CloudProbabilityCollection + "/" + sceneID)
	return m.cloudBands(img, prob)
}

func (m *CloudShadowMasker) cloudBands(img, prob expr.Image) expr.Image {
	clouds := prob.Gt(expr.Scalar(m.params.CloudProbabilityThreshold)).Rename(domain.BandClouds)
	return img.AddBands(prob, false).AddBands(clouds, false)
}

// AddShadowBands adds "dark_pixels", "cloud_transform" and "shadows".
// Clouds are projected along 90 minus the mean solar azimuth, and shadows
// are where the projection meets dark NIR pixels.
func (m *CloudShadowMasker) AddShadowBands(img expr.Image) expr.Image {
	p := m.params

	dark := img.Select(domain.BandSentinel2NIR).
		Lt(expr.Scalar(p.NIRDarkThreshold * p.ReflectanceScale)).
		Rename(domain.BandDarkPixels)

	azimuth := expr.Num(90).Subtract(expr.AsNumber(img.Get(domain.PropertySolarAzimuth)))

	projected := img.Select(domain.BandClouds).
		DirectionalDistanceTransform(azimuth, int(p.ShadowProjectionDistance)).
		Reproject(img.SelectIndex(0).Projection(), p.ShadowProjectionScale).
		Select("distance").
		Mask().
		Rename(domain.BandCloudTransform)

	shadows := projected.Multiply(dark).Rename(domain.BandShadows)

	return img.AddBands(dark, false).AddBands(projected, false).AddBands(shadows, false)
}

// CombineMask is 1 where either clouds or shadows is set.
func CombineMask(clouds, shadows expr.Image) expr.Image {
	return clouds.Add(shadows).Gt(expr.Scalar(0))
}

// CleanMask erodes the mask to drop isolated pixels, then dilates it over
// cloud edges, at the clean scale in the projection of ref.
func (m *CloudShadowMasker) CleanMask(mask, ref expr.Image) expr.Image {
	p := m.params
	return mask.
		FocalMin(p.ErosionRadius).
		FocalMax(p.DilationRadius()).
		Reproject(ref.SelectIndex(0).Projection(), p.CleanScale).
		Rename(domain.BandCloudMask)
}

// AddCloudShadowMask runs cloud, shadow and combine stages on a joined
// scene and adds the "cloudmask" band.
func (m *CloudShadowMasker) AddCloudShadowMask(img expr.Image) expr.Image {
	withShadows := m.AddShadowBands(m.AddCloudBands(img))
	mask := CombineMask(withShadows.Select(domain.BandClouds), withShadows.Select(domain.BandShadows))
	return withShadows.AddBands(m.CleanMask(mask, img), false)
}

// ApplyCloudShadowMask hides every pixel flagged in "cloudmask".
func ApplyCloudShadowMask(img expr.Image) expr.Image {
	return img.UpdateMask(img.Select(domain.BandCloudMask).Not())
}

// QAMask returns a function that keeps pixels whose cloud, cloud shadow
// and dilated cloud bits are all clear.
func QAMask(bits domain.QABits) func(expr.Image) expr.Image {
	return func(img expr.Image) expr.Image {
		qa := img.Select(bits.Band)
		mask := bitClear(qa, bits.CloudShadow).
			And(bitClear(qa, bits.Cloud)).
			And(bitClear(qa, bits.DilatedCloud))
		return img.UpdateMask(mask)
	}
}

// MaskQA60 masks Sentinel-2 opaque cloud and cirrus from the QA60 band.
func MaskQA60(img expr.Image) expr.Image {
	qa := img.Select(domain.BandSentinel2QA)
	mask := bitClear(qa, qa60CloudBit).And(bitClear(qa, qa60CirrusBit))
	return img.UpdateMask(mask)
}

// ProbabilityMask returns a function that keeps pixels of a joined scene
// whose cloud probability is below threshold.
func ProbabilityMask(threshold float64) func(expr.Image) expr.Image {
	return func(img expr.Image) expr.Image {
		prob := expr.AsImage(img.Get(domain.PropertyCloudMask)).Select(domain.BandCloudProbability)
		return img.UpdateMask(prob.Lt(expr.Scalar(threshold)))
	}
}

func bitClear(qa expr.Image, bit uint) expr.Image {
	return qa.BitwiseAnd(expr.Scalar(float64(uint64(1) << bit))).Eq(expr.Scalar(0))
}

// ApplyScaleFactors converts Landsat collection 2 surface reflectance and
// surface temperature bands to physical units, overwriting them.
func ApplyScaleFactors(img expr.Image) expr.Image {
	optical := img.Select("SR_B.").Multiply(expr.Scalar(opticalScale)).Add(expr.Scalar(opticalOffset))
	thermal := img.Select("ST_B.*").Multiply(expr.Scalar(thermalScale)).Add(expr.Scalar(thermalOffset))
	return img.AddBands(optical, true).AddBands(thermal, true)
}

// RenameBands returns a function selecting bands and renaming them to names.
func RenameBands(bands, names []string) func(expr.Image) expr.Image {
	return func(img expr.Image) expr.Image {
		return img.Select(bands...).Rename(names...)
	}
}

// Resample reprojects every band of img to crs at scale metres per pixel.
func Resample(img expr.Image, crs string, scale float64) expr.Image {
	return img.Reproject(expr.CRS(crs), scale)
}
