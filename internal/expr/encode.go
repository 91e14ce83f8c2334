package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrEmptyExpression is returned when encoding a nil graph.
var ErrEmptyExpression = errors.New("empty expression")

// Graph is the wire form of a request graph: a table of values keyed by id
// and the id of the result value.
type Graph struct {
	Result string                `json:"result"`
	Values map[string]*ValueNode `json:"values"`
}

// ValueNode is one entry of the wire form. Exactly one field is set.
type ValueNode struct {
	ConstantValue           json.RawMessage     `json:"constantValue,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
	FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue,omitempty"`
	ArrayValue              *ArrayValue         `json:"arrayValue,omitempty"`
	DictionaryValue         *DictionaryValue    `json:"dictionaryValue,omitempty"`
	ArgumentReference       string              `json:"argumentReference,omitempty"`
	FunctionDefinitionValue *FunctionDefinition `json:"functionDefinitionValue,omitempty"`
}

// FunctionInvocation calls a server function.
type FunctionInvocation struct {
	FunctionName string                `json:"functionName"`
	Arguments    map[string]*ValueNode `json:"arguments,omitempty"`
}

// ArrayValue is a list of values.
type ArrayValue struct {
	Values []*ValueNode `json:"values"`
}

// DictionaryValue is a map of values.
type DictionaryValue struct {
	Values map[string]*ValueNode `json:"values"`
}

// FunctionDefinition is a lambda; Body references an entry in Graph.Values.
type FunctionDefinition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

// Encode converts an expression into its wire form. Invocations and
// function definitions are stored once in the value table and referenced
// by id; structurally equal subgraphs share one id. Ids are assigned in
// post order, so the result always has the highest id.
func Encode(e Expression) (*Graph, error) {
	root := nodeOf(e)
	if root == nil {
		return nil, ErrEmptyExpression
	}

	enc := &encoder{
		values: make(map[string]*ValueNode),
		ids:    make(map[string]string),
		memo:   make(map[*Node]*ValueNode),
	}
	v, err := enc.encode(root)
	if err != nil {
		return nil, err
	}

	// A constant or argument at the root still needs an entry.
	if v.ValueReference == "" {
		id, err := enc.store(v)
		if err != nil {
			return nil, err
		}
		return &Graph{Result: id, Values: enc.values}, nil
	}
	return &Graph{Result: v.ValueReference, Values: enc.values}, nil
}

// MarshalExpression encodes e straight to JSON.
func MarshalExpression(e Expression) ([]byte, error) {
	g, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(g)
}

type encoder struct {
	values map[string]*ValueNode
	ids    map[string]string    // canonical JSON -> id
	memo   map[*Node]*ValueNode // already encoded nodes
}

func (e *encoder) encode(n *Node) (*ValueNode, error) {
	if n == nil {
		return &ValueNode{ConstantValue: json.RawMessage("null")}, nil
	}
	if v, ok := e.memo[n]; ok {
		return v, nil
	}

	v, err := e.encodeNode(n)
	if err != nil {
		return nil, err
	}
	e.memo[n] = v
	return v, nil
}

func (e *encoder) encodeNode(n *Node) (*ValueNode, error) {
	switch n.kind {
	case KindConstant:
		raw, err := json.Marshal(n.value)
		if err != nil {
			return nil, fmt.Errorf("encoding constant %v: %w", n.value, err)
		}
		return &ValueNode{ConstantValue: raw}, nil

	case KindArgument:
		return &ValueNode{ArgumentReference: n.name}, nil

	case KindArray:
		vals := make([]*ValueNode, len(n.items))
		for i, it := range n.items {
			v, err := e.encode(it)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		if raw, ok := constantArray(vals); ok {
			return &ValueNode{ConstantValue: raw}, nil
		}
		return &ValueNode{ArrayValue: &ArrayValue{Values: vals}}, nil

	case KindDict:
		vals, err := e.encodeArgs(n)
		if err != nil {
			return nil, err
		}
		return &ValueNode{DictionaryValue: &DictionaryValue{Values: vals}}, nil

	case KindInvocation:
		args, err := e.encodeArgs(n)
		if err != nil {
			return nil, err
		}
		return e.reference(&ValueNode{FunctionInvocationValue: &FunctionInvocation{
			FunctionName: n.fn,
			Arguments:    args,
		}})

	case KindFunction:
		body, err := e.encode(n.body)
		if err != nil {
			return nil, err
		}
		bodyID := body.ValueReference
		if bodyID == "" {
			if bodyID, err = e.store(body); err != nil {
				return nil, err
			}
		}
		return e.reference(&ValueNode{FunctionDefinitionValue: &FunctionDefinition{
			ArgumentNames: n.params,
			Body:          bodyID,
		}})

	default:
		return nil, fmt.Errorf("unknown node kind %d", n.kind)
	}
}

// encodeArgs encodes arguments in sorted key order so ids are deterministic.
func (e *encoder) encodeArgs(n *Node) (map[string]*ValueNode, error) {
	out := make(map[string]*ValueNode, len(n.args))
	for _, k := range n.ArgNames() {
		v, err := e.encode(n.args[k])
		if err != nil {
			return nil, fmt.Errorf("argument %s of %s: %w", k, n.fn, err)
		}
		out[k] = v
	}
	return out, nil
}

func (e *encoder) reference(v *ValueNode) (*ValueNode, error) {
	id, err := e.store(v)
	if err != nil {
		return nil, err
	}
	return &ValueNode{ValueReference: id}, nil
}

func (e *encoder) store(v *ValueNode) (string, error) {
	key, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding value: %w", err)
	}
	if id, ok := e.ids[string(key)]; ok {
		return id, nil
	}
	id := strconv.Itoa(len(e.values))
	e.values[id] = v
	e.ids[string(key)] = id
	return id, nil
}

func constantArray(vals []*ValueNode) (json.RawMessage, bool) {
	raws := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		if v.ConstantValue == nil {
			return nil, false
		}
		raws[i] = v.ConstantValue
	}
	raw, err := json.Marshal(raws)
	if err != nil {
		return nil, false
	}
	return raw, true
}
