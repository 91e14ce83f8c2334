// Package expr builds request graphs for the remote image processing
// service. Values are immutable: every operation returns a new value that
// references its inputs, and nothing is evaluated until a graph is encoded
// and sent through the EarthEngine port.
package expr

import "sort"

// Kind identifies the shape of a graph node.
type Kind int

// Node kinds.
const (
	KindConstant Kind = iota
	KindInvocation
	KindArgument
	KindFunction
	KindArray
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindInvocation:
		return "invocation"
	case KindArgument:
		return "argument"
	case KindFunction:
		return "function"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	default:
		return "unknown"
	}
}

// Node is a single vertex of a request graph.
type Node struct {
	kind   Kind
	value  interface{}      // constant
	fn     string           // invocation
	args   map[string]*Node // invocation arguments, dict entries
	items  []*Node          // array
	name   string           // argument reference
	params []string         // function definition
	body   *Node            // function definition
}

// Expression is implemented by every typed graph value.
type Expression interface {
	Node() *Node
}

// Constant returns a literal value node. The value must be JSON encodable.
func Constant(v interface{}) *Node {
	return &Node{kind: KindConstant, value: v}
}

// Invoke returns a server function call node.
func Invoke(fn string, args map[string]*Node) *Node {
	return &Node{kind: KindInvocation, fn: fn, args: args}
}

// Array returns an array node.
func Array(items ...*Node) *Node {
	return &Node{kind: KindArray, items: items}
}

// Dict returns a dictionary node.
func Dict(entries map[string]*Node) *Node {
	return &Node{kind: KindDict, args: entries}
}

// ArgRef returns a reference to a function argument.
func ArgRef(name string) *Node {
	return &Node{kind: KindArgument, name: name}
}

// Function returns a function definition node.
func Function(params []string, body *Node) *Node {
	return &Node{kind: KindFunction, params: params, body: body}
}

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// Value returns the literal of a constant node.
func (n *Node) Value() interface{} { return n.value }

// Func returns the function name of an invocation node.
func (n *Node) Func() string { return n.fn }

// Arg returns a named invocation argument or dictionary entry, nil if absent.
func (n *Node) Arg(name string) *Node { return n.args[name] }

// ArgNames returns the sorted argument names of an invocation or dictionary.
func (n *Node) ArgNames() []string {
	names := make([]string, 0, len(n.args))
	for k := range n.args {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Items returns the elements of an array node.
func (n *Node) Items() []*Node { return n.items }

// Name returns the name of an argument reference.
func (n *Node) Name() string { return n.name }

// Params returns the argument names of a function definition.
func (n *Node) Params() []string { return n.params }

// Body returns the body of a function definition.
func (n *Node) Body() *Node { return n.body }

// Walk visits n and its distinct descendants depth first. A node shared
// by several parents is visited once. Returning false from visit skips
// the children of that node.
func Walk(n *Node, visit func(*Node) bool) {
	walk(n, visit, make(map[*Node]bool))
}

func walk(n *Node, visit func(*Node) bool, seen map[*Node]bool) {
	if n == nil || seen[n] {
		return
	}
	seen[n] = true
	if !visit(n) {
		return
	}
	switch n.kind {
	case KindInvocation, KindDict:
		for _, k := range n.ArgNames() {
			walk(n.args[k], visit, seen)
		}
	case KindArray:
		for _, it := range n.items {
			walk(it, visit, seen)
		}
	case KindFunction:
		walk(n.body, visit, seen)
	}
}

// Calls returns every distinct invocation of fn reachable from n, in walk
// order.
func Calls(n *Node, fn string) []*Node {
	var out []*Node
	Walk(n, func(c *Node) bool {
		if c.kind == KindInvocation && c.fn == fn {
			out = append(out, c)
		}
		return true
	})
	return out
}

// functionDepth returns the deepest nesting of function definitions in n.
func functionDepth(n *Node) int {
	if n == nil {
		return 0
	}
	depth := 0
	switch n.kind {
	case KindFunction:
		return 1 + functionDepth(n.body)
	case KindInvocation, KindDict:
		for _, c := range n.args {
			if d := functionDepth(c); d > depth {
				depth = d
			}
		}
	case KindArray:
		for _, c := range n.items {
			if d := functionDepth(c); d > depth {
				depth = d
			}
		}
	}
	return depth
}

func nodeOf(e Expression) *Node {
	if e == nil {
		return nil
	}
	return e.Node()
}
