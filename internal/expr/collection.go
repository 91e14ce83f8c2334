package expr

import "fmt"

// ImageCollection is a deferred, ordered set of images.
type ImageCollection struct{ n *Node }

// Node implements Expression.
func (c ImageCollection) Node() *Node { return c.n }

// LoadCollection loads an image collection asset.
func LoadCollection(id string) ImageCollection {
	return ImageCollection{Invoke("ImageCollection.load", map[string]*Node{"id": Constant(id)})}
}

// AsImageCollection casts a computed object to an image collection.
func AsImageCollection(e Expression) ImageCollection {
	return ImageCollection{nodeOf(e)}
}

// Filter keeps the images matching f.
func (c ImageCollection) Filter(f Filter) ImageCollection {
	return ImageCollection{Invoke("Collection.filter", map[string]*Node{
		"collection": c.n,
		"filter":     f.n,
	})}
}

// FilterBounds keeps images whose footprint intersects geometry.
func (c ImageCollection) FilterBounds(geometry Expression) ImageCollection {
	return c.Filter(Intersects(geometry))
}

// FilterDate keeps images acquired in [start, end), dates as YYYY-MM-DD.
func (c ImageCollection) FilterDate(start, end string) ImageCollection {
	return c.Filter(DateRange(start, end))
}

// Map applies fn to every image on the server.
func (c ImageCollection) Map(fn func(Image) Image) ImageCollection {
	body := MapFunction(func(arg *Node) *Node { return fn(Image{arg}).n })
	return ImageCollection{Invoke("Collection.map", map[string]*Node{
		"collection":    c.n,
		"baseAlgorithm": body,
	})}
}

// Select keeps the named bands of every image.
func (c ImageCollection) Select(bands ...string) ImageCollection {
	return c.Map(func(img Image) Image { return img.Select(bands...) })
}

// Sort orders the collection by a metadata property.
func (c ImageCollection) Sort(property string, ascending bool) ImageCollection {
	return ImageCollection{Invoke("Collection.limit", map[string]*Node{
		"collection": c.n,
		"key":        Constant(property),
		"ascending":  Constant(ascending),
	})}
}

// Limit keeps the first n images.
func (c ImageCollection) Limit(n int) ImageCollection {
	return ImageCollection{Invoke("Collection.limit", map[string]*Node{
		"collection": c.n,
		"limit":      Constant(n),
	})}
}

// First returns the first image.
func (c ImageCollection) First() Image {
	return Image{Invoke("Collection.first", map[string]*Node{"collection": c.n})}
}

// Size returns the number of images.
func (c ImageCollection) Size() Number {
	return Number{Invoke("Collection.size", map[string]*Node{"collection": c.n})}
}

// Median reduces the collection to its per pixel median.
func (c ImageCollection) Median() Image {
	return Image{Invoke("reduce.median", map[string]*Node{"collection": c.n})}
}

// Mosaic composites the collection, last image on top.
func (c ImageCollection) Mosaic() Image {
	return Image{Invoke("ImageCollection.mosaic", map[string]*Node{"collection": c.n})}
}

// AggregateArray collects one property of every image into a list.
func (c ImageCollection) AggregateArray(property string) Object {
	return Object{Invoke("AggregateFeatureCollection.array", map[string]*Node{
		"collection": c.n,
		"property":   Constant(property),
	})}
}

// MapFunction builds a one-argument function definition. The argument name
// depends on how many function definitions the body nests, so that nested
// maps never shadow each other and equal bodies encode identically.
func MapFunction(body func(arg *Node) *Node) *Node {
	probe := body(ArgRef(""))
	name := fmt.Sprintf("_MAPPING_VAR_%d_0", functionDepth(probe))
	return Function([]string{name}, body(ArgRef(name)))
}
