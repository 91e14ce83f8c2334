package expr

// Image is a deferred multi-band raster.
type Image struct{ n *Node }

// Node implements Expression.
func (i Image) Node() *Node { return i.n }

// LoadImage loads a single asset by id, e.g. "COPERNICUS/S2_CLOUD_PROBABILITY/<scene>".
func LoadImage(id string) Image {
	return Image{Invoke("Image.load", map[string]*Node{"id": Constant(id)})}
}

// Scalar returns a constant image with value v in every pixel.
func Scalar(v float64) Image {
	return Image{Invoke("Image.constant", map[string]*Node{"value": Constant(v)})}
}

// AsImage casts a computed object to an image.
func AsImage(e Expression) Image {
	return Image{nodeOf(e)}
}

func (i Image) call(fn string, args map[string]*Node) Image {
	return Image{Invoke(fn, args)}
}

func (i Image) binary(fn string, other Image) Image {
	return i.call(fn, map[string]*Node{"image1": i.n, "image2": other.n})
}

// Select keeps the named bands, in order.
func (i Image) Select(bands ...string) Image {
	return i.call("Image.select", map[string]*Node{
		"input":         i.n,
		"bandSelectors": Constant(bands),
	})
}

// SelectIndex keeps the band at position idx.
func (i Image) SelectIndex(idx int) Image {
	return i.call("Image.select", map[string]*Node{
		"input":         i.n,
		"bandSelectors": Constant([]int{idx}),
	})
}

// Rename renames all bands of the image.
func (i Image) Rename(names ...string) Image {
	return i.call("Image.rename", map[string]*Node{
		"input": i.n,
		"names": Constant(names),
	})
}

// AddBands appends the bands of src. With overwrite, bands of the same name
// are replaced.
func (i Image) AddBands(src Image, overwrite bool) Image {
	args := map[string]*Node{"dstImg": i.n, "srcImg": src.n}
	if overwrite {
		args["overwrite"] = Constant(true)
	}
	return i.call("Image.addBands", args)
}

// UpdateMask hides every pixel where mask is zero.
func (i Image) UpdateMask(mask Image) Image {
	return i.call("Image.updateMask", map[string]*Node{"image": i.n, "mask": mask.n})
}

// Mask returns the current mask of the image.
func (i Image) Mask() Image {
	return i.call("Image.mask", map[string]*Node{"image": i.n})
}

// BitwiseAnd computes i & other per pixel.
func (i Image) BitwiseAnd(other Image) Image { return i.binary("Image.bitwiseAnd", other) }

// Eq compares per pixel for equality.
func (i Image) Eq(other Image) Image { return i.binary("Image.eq", other) }

// Gt compares per pixel, i > other.
func (i Image) Gt(other Image) Image { return i.binary("Image.gt", other) }

// Lt compares per pixel, i < other.
func (i Image) Lt(other Image) Image { return i.binary("Image.lt", other) }

// And is the per pixel logical conjunction.
func (i Image) And(other Image) Image { return i.binary("Image.and", other) }

// Or is the per pixel logical disjunction.
func (i Image) Or(other Image) Image { return i.binary("Image.or", other) }

// Add is the per pixel sum.
func (i Image) Add(other Image) Image { return i.binary("Image.add", other) }

// Subtract is the per pixel difference.
func (i Image) Subtract(other Image) Image { return i.binary("Image.subtract", other) }

// Multiply is the per pixel product.
func (i Image) Multiply(other Image) Image { return i.binary("Image.multiply", other) }

// Not is the per pixel logical negation.
func (i Image) Not() Image {
	return i.call("Image.not", map[string]*Node{"value": i.n})
}

// DirectionalDistanceTransform computes, for each pixel, the distance to
// the nearest non-zero pixel along angle (degrees), up to maxDistance pixels.
// The output has "distance" and "value" bands.
func (i Image) DirectionalDistanceTransform(angle Number, maxDistance int) Image {
	return i.call("Image.directionalDistanceTransform", map[string]*Node{
		"source":      i.n,
		"angle":       angle.n,
		"maxDistance": Constant(maxDistance),
	})
}

// Projection returns the projection of the image's first band.
func (i Image) Projection() Projection {
	return Projection{Invoke("Image.projection", map[string]*Node{"image": i.n})}
}

// Reproject resamples the image into crs at scale metres per pixel.
func (i Image) Reproject(crs Projection, scale float64) Image {
	return i.call("Image.reproject", map[string]*Node{
		"image": i.n,
		"crs":   crs.n,
		"scale": Constant(scale),
	})
}

// FocalMin is a morphological erosion with a circular kernel, radius in pixels.
func (i Image) FocalMin(radius float64) Image {
	return i.focal("Image.focal_min", radius)
}

// FocalMax is a morphological dilation with a circular kernel, radius in pixels.
func (i Image) FocalMax(radius float64) Image {
	return i.focal("Image.focal_max", radius)
}

func (i Image) focal(fn string, radius float64) Image {
	return i.call(fn, map[string]*Node{
		"image":      i.n,
		"radius":     Constant(radius),
		"kernelType": Constant("circle"),
		"units":      Constant("pixels"),
		"iterations": Constant(1),
	})
}

// NormalizedDifference computes (a - b) / (a + b) into a band named "nd".
func (i Image) NormalizedDifference(a, b string) Image {
	return i.call("Image.normalizedDifference", map[string]*Node{
		"input":     i.n,
		"bandNames": Constant([]string{a, b}),
	})
}

// Clip restricts the image footprint to geometry.
func (i Image) Clip(geometry Expression) Image {
	return i.call("Image.clip", map[string]*Node{"input": i.n, "geometry": nodeOf(geometry)})
}

// BandNames returns the list of band names.
func (i Image) BandNames() Object {
	return Object{Invoke("Image.bandNames", map[string]*Node{"image": i.n})}
}

// Get reads a metadata property.
func (i Image) Get(property string) Object {
	return Object{Invoke("Element.get", map[string]*Node{
		"object":   i.n,
		"property": Constant(property),
	})}
}

// Projection is a deferred coordinate reference system plus transform.
type Projection struct{ n *Node }

// Node implements Expression.
func (p Projection) Node() *Node { return p.n }

// CRS returns a projection for a CRS code such as "EPSG:2193".
func CRS(code string) Projection {
	return Projection{Invoke("Projection", map[string]*Node{"crs": Constant(code)})}
}

// Number is a deferred scalar.
type Number struct{ n *Node }

// Node implements Expression.
func (v Number) Node() *Node { return v.n }

// Num returns a constant number.
func Num(v float64) Number {
	return Number{Constant(v)}
}

// AsNumber casts a computed object to a number.
func AsNumber(e Expression) Number {
	return Number{nodeOf(e)}
}

// Subtract computes v - other.
func (v Number) Subtract(other Number) Number {
	return Number{Invoke("Number.subtract", map[string]*Node{"left": v.n, "right": other.n})}
}

// Object is a computed value of unknown type, such as a metadata property.
type Object struct{ n *Node }

// Node implements Expression.
func (o Object) Node() *Node { return o.n }

// If selects between two values on the server.
func If(condition, trueCase, falseCase Expression) Object {
	return Object{Invoke("Algorithms.If", map[string]*Node{
		"condition": nodeOf(condition),
		"trueCase":  nodeOf(trueCase),
		"falseCase": nodeOf(falseCase),
	})}
}
