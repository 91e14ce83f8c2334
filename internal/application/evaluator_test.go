package application

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/expr"
)

// grid is a single band of pixel values; NaN marks masked pixels.
type grid [][]float64

func newGrid(h, w int, v float64) grid {
	g := make(grid, h)
	for y := range g {
		g[y] = make([]float64, w)
		for x := range g[y] {
			g[y][x] = v
		}
	}
	return g
}

func (g grid) clone() grid {
	out := make(grid, len(g))
	for y := range g {
		out[y] = append([]float64(nil), g[y]...)
	}
	return out
}

// raster is an in-memory image.
type raster struct {
	names []string
	bands []grid
	props map[string]interface{}
}

func singleBand(name string, g grid) *raster {
	return &raster{names: []string{name}, bands: []grid{g}}
}

func (r *raster) band(name string) (grid, bool) {
	for i, n := range r.names {
		if n == name {
			return r.bands[i], true
		}
	}
	return nil, false
}

// gridEvaluator evaluates the subset of server functions used by masking
// and index graphs on small in-memory rasters.
type gridEvaluator struct {
	images map[string]*raster
	h, w   int
}

func newGridEvaluator(h, w int) *gridEvaluator {
	return &gridEvaluator{images: make(map[string]*raster), h: h, w: w}
}

// engine adapts the evaluator to the EarthEngine port via mockEngine.
func (ev *gridEvaluator) engine() *mockEngine {
	return &mockEngine{
		url: "http://example.invalid/pixels",
		computeFn: func(n *expr.Node) (interface{}, error) {
			v, err := ev.eval(n)
			if err != nil {
				return nil, &domain.EvaluationError{
					Operation:  "compute",
					StatusCode: 400,
					Status:     "INVALID_ARGUMENT",
					Message:    err.Error(),
				}
			}
			return v, nil
		},
	}
}

func (ev *gridEvaluator) evalImage(e expr.Expression) (*raster, error) {
	v, err := ev.eval(e.Node())
	if err != nil {
		return nil, err
	}
	r, ok := v.(*raster)
	if !ok {
		return nil, fmt.Errorf("result is %T, not an image", v)
	}
	return r, nil
}

func (ev *gridEvaluator) eval(n *expr.Node) (interface{}, error) {
	switch n.Kind() {
	case expr.KindConstant:
		return n.Value(), nil
	case expr.KindInvocation:
		return ev.call(n)
	default:
		return nil, fmt.Errorf("unsupported node kind %s", n.Kind())
	}
}

func (ev *gridEvaluator) image(n *expr.Node, arg string) (*raster, error) {
	v, err := ev.eval(n.Arg(arg))
	if err != nil {
		return nil, err
	}
	r, ok := v.(*raster)
	if !ok {
		return nil, fmt.Errorf("%s: argument %s is %T, not an image", n.Func(), arg, v)
	}
	return r, nil
}

func (ev *gridEvaluator) call(n *expr.Node) (interface{}, error) {
	switch fn := n.Func(); fn {
	case "Image.load":
		id := n.Arg("id").Value().(string)
		r, ok := ev.images[id]
		if !ok {
			return nil, fmt.Errorf("Image.load: asset %s not found", id)
		}
		return r, nil

	case "Image.constant":
		return singleBand("constant", newGrid(ev.h, ev.w, toFloat(n.Arg("value").Value()))), nil

	case "Image.select":
		in, err := ev.image(n, "input")
		if err != nil {
			return nil, err
		}
		out := &raster{props: in.props}
		switch sel := n.Arg("bandSelectors").Value().(type) {
		case []string:
			for _, name := range sel {
				g, ok := in.band(name)
				if !ok {
					return nil, fmt.Errorf("Image.select: Pattern '%s' did not match any bands", name)
				}
				out.names = append(out.names, name)
				out.bands = append(out.bands, g)
			}
		case []int:
			for _, idx := range sel {
				if idx >= len(in.bands) {
					return nil, fmt.Errorf("Image.select: band index %d out of range", idx)
				}
				out.names = append(out.names, in.names[idx])
				out.bands = append(out.bands, in.bands[idx])
			}
		default:
			return nil, fmt.Errorf("Image.select: unsupported selectors %T", sel)
		}
		return out, nil

	case "Image.rename":
		in, err := ev.image(n, "input")
		if err != nil {
			return nil, err
		}
		names := n.Arg("names").Value().([]string)
		if len(names) != len(in.bands) {
			return nil, fmt.Errorf("Image.rename: %d names for %d bands", len(names), len(in.bands))
		}
		return &raster{names: append([]string(nil), names...), bands: in.bands, props: in.props}, nil

	case "Image.addBands":
		dst, err := ev.image(n, "dstImg")
		if err != nil {
			return nil, err
		}
		src, err := ev.image(n, "srcImg")
		if err != nil {
			return nil, err
		}
		overwrite := n.Arg("overwrite") != nil
		out := &raster{
			names: append([]string(nil), dst.names...),
			bands: append([]grid(nil), dst.bands...),
			props: dst.props,
		}
		for i, name := range src.names {
			replaced := false
			for j, existing := range out.names {
				if existing == name {
					if !overwrite {
						return nil, fmt.Errorf("Image.addBands: duplicate band %s", name)
					}
					out.bands[j] = src.bands[i]
					replaced = true
				}
			}
			if !replaced {
				out.names = append(out.names, name)
				out.bands = append(out.bands, src.bands[i])
			}
		}
		return out, nil

	case "Image.gt", "Image.lt", "Image.eq", "Image.add", "Image.subtract",
		"Image.multiply", "Image.and", "Image.or", "Image.bitwiseAnd":
		a, err := ev.image(n, "image1")
		if err != nil {
			return nil, err
		}
		b, err := ev.image(n, "image2")
		if err != nil {
			return nil, err
		}
		return binaryOp(fn, a, b)

	case "Image.not":
		in, err := ev.image(n, "value")
		if err != nil {
			return nil, err
		}
		return mapPixels(in, func(v float64) float64 { return boolFloat(v == 0) }), nil

	case "Image.focal_min", "Image.focal_max":
		in, err := ev.image(n, "image")
		if err != nil {
			return nil, err
		}
		radius := toFloat(n.Arg("radius").Value())
		pick := math.Min
		if fn == "Image.focal_max" {
			pick = math.Max
		}
		out := &raster{names: in.names, props: in.props}
		for _, g := range in.bands {
			out.bands = append(out.bands, focal(g, radius, pick))
		}
		return out, nil

	case "Image.reproject":
		return ev.image(n, "image")

	case "Image.normalizedDifference":
		in, err := ev.image(n, "input")
		if err != nil {
			return nil, err
		}
		names := n.Arg("bandNames").Value().([]string)
		a, ok := in.band(names[0])
		if !ok {
			return nil, fmt.Errorf("Image.normalizedDifference: band %s not found", names[0])
		}
		b, ok := in.band(names[1])
		if !ok {
			return nil, fmt.Errorf("Image.normalizedDifference: band %s not found", names[1])
		}
		nd := newGrid(ev.h, ev.w, 0)
		for y := range nd {
			for x := range nd[y] {
				nd[y][x] = (a[y][x] - b[y][x]) / (a[y][x] + b[y][x])
			}
		}
		return singleBand("nd", nd), nil

	case "Image.updateMask":
		in, err := ev.image(n, "image")
		if err != nil {
			return nil, err
		}
		mask, err := ev.image(n, "mask")
		if err != nil {
			return nil, err
		}
		out := &raster{names: in.names, props: in.props}
		for _, g := range in.bands {
			c := g.clone()
			for y := range c {
				for x := range c[y] {
					if mask.bands[0][y][x] == 0 || math.IsNaN(mask.bands[0][y][x]) {
						c[y][x] = math.NaN()
					}
				}
			}
			out.bands = append(out.bands, c)
		}
		return out, nil

	case "Image.bandNames":
		in, err := ev.image(n, "image")
		if err != nil {
			return nil, err
		}
		return append([]string(nil), in.names...), nil

	case "Element.get":
		in, err := ev.image(n, "object")
		if err != nil {
			return nil, err
		}
		return in.props[n.Arg("property").Value().(string)], nil

	default:
		return nil, fmt.Errorf("function %s is not supported by the test evaluator", fn)
	}
}

func binaryOp(fn string, a, b *raster) (*raster, error) {
	op := map[string]func(x, y float64) float64{
		"Image.gt":         func(x, y float64) float64 { return boolFloat(x > y) },
		"Image.lt":         func(x, y float64) float64 { return boolFloat(x < y) },
		"Image.eq":         func(x, y float64) float64 { return boolFloat(x == y) },
		"Image.add":        func(x, y float64) float64 { return x + y },
		"Image.subtract":   func(x, y float64) float64 { return x - y },
		"Image.multiply":   func(x, y float64) float64 { return x * y },
		"Image.and":        func(x, y float64) float64 { return boolFloat(x != 0 && y != 0) },
		"Image.or":         func(x, y float64) float64 { return boolFloat(x != 0 || y != 0) },
		"Image.bitwiseAnd": func(x, y float64) float64 { return float64(int64(x) & int64(y)) },
	}[fn]

	if len(b.bands) != 1 && len(b.bands) != len(a.bands) {
		return nil, fmt.Errorf("%s: band count mismatch %d vs %d", fn, len(a.bands), len(b.bands))
	}

	out := &raster{names: a.names, props: a.props}
	for i, ga := range a.bands {
		gb := b.bands[0]
		if len(b.bands) > 1 {
			gb = b.bands[i]
		}
		g := ga.clone()
		for y := range g {
			for x := range g[y] {
				g[y][x] = op(ga[y][x], gb[y][x])
			}
		}
		out.bands = append(out.bands, g)
	}
	return out, nil
}

func mapPixels(in *raster, f func(float64) float64) *raster {
	out := &raster{names: in.names, props: in.props}
	for _, g := range in.bands {
		c := g.clone()
		for y := range c {
			for x := range c[y] {
				c[y][x] = f(c[y][x])
			}
		}
		out.bands = append(out.bands, c)
	}
	return out
}

// focal applies pick over a circular neighbourhood; pixels outside the
// grid are ignored.
func focal(g grid, radius float64, pick func(a, b float64) float64) grid {
	r := int(math.Ceil(radius))
	out := g.clone()
	for y := range g {
		for x := range g[y] {
			acc := g[y][x]
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					if float64(dx*dx+dy*dy) > radius*radius {
						continue
					}
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= len(g) || nx < 0 || nx >= len(g[y]) {
						continue
					}
					acc = pick(acc, g[ny][nx])
				}
			}
			out[y][x] = acc
		}
	}
	return out
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return math.NaN()
	}
}
