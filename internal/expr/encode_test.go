package expr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSelect(t *testing.T) {
	img := LoadImage("COPERNICUS/S2/20200101T000000_20200101T000000_T01ABC").Select("B8", "B4")

	g, err := Encode(img)
	require.NoError(t, err)

	require.Len(t, g.Values, 2)
	assert.Equal(t, "1", g.Result)

	load := g.Values["0"].FunctionInvocationValue
	require.NotNil(t, load)
	assert.Equal(t, "Image.load", load.FunctionName)
	assert.JSONEq(t, `"COPERNICUS/S2/20200101T000000_20200101T000000_T01ABC"`, string(load.Arguments["id"].ConstantValue))

	sel := g.Values["1"].FunctionInvocationValue
	require.NotNil(t, sel)
	assert.Equal(t, "Image.select", sel.FunctionName)
	assert.Equal(t, "0", sel.Arguments["input"].ValueReference)
	assert.JSONEq(t, `["B8","B4"]`, string(sel.Arguments["bandSelectors"].ConstantValue))
}

func TestEncodeSharesEqualSubgraphs(t *testing.T) {
	// Two structurally equal loads built separately encode to one value.
	a := LoadImage("X")
	b := LoadImage("X")

	g, err := Encode(a.Add(b))
	require.NoError(t, err)

	require.Len(t, g.Values, 2)
	add := g.Values[g.Result].FunctionInvocationValue
	require.NotNil(t, add)
	assert.Equal(t, add.Arguments["image1"].ValueReference, add.Arguments["image2"].ValueReference)
}

func TestEncodeIsDeterministic(t *testing.T) {
	build := func() Image {
		img := LoadImage("X")
		return img.Select("B8").Lt(Scalar(1500)).And(img.Select("B4").Gt(Scalar(10)))
	}

	first, err := MarshalExpression(build())
	require.NoError(t, err)
	second, err := MarshalExpression(build())
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestEncodeConstantRoot(t *testing.T) {
	g, err := Encode(Num(3))
	require.NoError(t, err)

	assert.Equal(t, "0", g.Result)
	assert.JSONEq(t, `3`, string(g.Values["0"].ConstantValue))
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrEmptyExpression)
}

func TestEncodeArrayOfReferences(t *testing.T) {
	f1 := NewFeature(Geometry{Invoke("GeometryConstructors.Point", map[string]*Node{"coordinates": Constant([]float64{1, 2})})}, nil)
	f2 := NewFeature(Geometry{Invoke("GeometryConstructors.Point", map[string]*Node{"coordinates": Constant([]float64{3, 4})})}, nil)

	g, err := Encode(NewFeatureCollection(f1, f2))
	require.NoError(t, err)

	coll := g.Values[g.Result].FunctionInvocationValue
	require.NotNil(t, coll)
	arr := coll.Arguments["features"].ArrayValue
	require.NotNil(t, arr)
	require.Len(t, arr.Values, 2)
	assert.NotEmpty(t, arr.Values[0].ValueReference)
	assert.NotEqual(t, arr.Values[0].ValueReference, arr.Values[1].ValueReference)
}

func TestEncodeConstantArrayCollapses(t *testing.T) {
	n := Array(Constant(1), Constant("a"))
	g, err := Encode(Object{n})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,"a"]`, string(g.Values[g.Result].ConstantValue))
}

func TestEncodeMap(t *testing.T) {
	coll := LoadCollection("C").Map(func(img Image) Image {
		return img.Select("B1")
	})

	g, err := Encode(coll)
	require.NoError(t, err)

	mapCall := g.Values[g.Result].FunctionInvocationValue
	require.NotNil(t, mapCall)
	assert.Equal(t, "Collection.map", mapCall.FunctionName)

	fnRef := mapCall.Arguments["baseAlgorithm"].ValueReference
	def := g.Values[fnRef].FunctionDefinitionValue
	require.NotNil(t, def)
	assert.Equal(t, []string{"_MAPPING_VAR_0_0"}, def.ArgumentNames)

	body := g.Values[def.Body].FunctionInvocationValue
	require.NotNil(t, body)
	assert.Equal(t, "Image.select", body.FunctionName)
	assert.Equal(t, "_MAPPING_VAR_0_0", body.Arguments["input"].ArgumentReference)
}

func TestEncodeNestedMapNames(t *testing.T) {
	outer := LoadCollection("A").Map(func(img Image) Image {
		inner := LoadCollection("B").Map(func(other Image) Image {
			return other.Add(img)
		})
		return inner.First()
	})

	fns := []*Node{}
	Walk(outer.Node(), func(n *Node) bool {
		if n.Kind() == KindFunction {
			fns = append(fns, n)
		}
		return true
	})

	require.Len(t, fns, 2)
	assert.Equal(t, []string{"_MAPPING_VAR_1_0"}, fns[0].Params())
	assert.Equal(t, []string{"_MAPPING_VAR_0_0"}, fns[1].Params())

	_, err := Encode(outer)
	require.NoError(t, err)
}

func TestEncodeRejectsUnencodableConstant(t *testing.T) {
	_, err := Encode(Object{Constant(make(chan int))})
	assert.Error(t, err)
}

func TestGraphJSONShape(t *testing.T) {
	raw, err := MarshalExpression(LoadCollection("C").Size())
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "result")
	assert.Contains(t, doc, "values")
}
