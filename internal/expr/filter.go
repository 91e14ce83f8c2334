package expr

// Filter is a deferred predicate over collection elements.
type Filter struct{ n *Node }

// Node implements Expression.
func (f Filter) Node() *Node { return f.n }

// Intersects matches elements whose geometry intersects geometry.
func Intersects(geometry Expression) Filter {
	return Filter{Invoke("Filter.intersects", map[string]*Node{
		"leftField":  Constant(".all"),
		"rightValue": nodeOf(geometry),
	})}
}

// DateRange matches elements with system:time_start in [start, end).
func DateRange(start, end string) Filter {
	rng := Invoke("DateRange", map[string]*Node{
		"start": Constant(start),
		"end":   Constant(end),
	})
	return Filter{Invoke("Filter.dateRangeContains", map[string]*Node{
		"leftValue":  rng,
		"rightField": Constant("system:time_start"),
	})}
}

// LessThan matches elements whose property is strictly below value.
func LessThan(property string, value float64) Filter {
	return Filter{Invoke("Filter.lessThan", map[string]*Node{
		"leftField":  Constant(property),
		"rightValue": Constant(value),
	})}
}

// FieldsEqual matches pairs whose left and right fields are equal, for joins.
func FieldsEqual(leftField, rightField string) Filter {
	return Filter{Invoke("Filter.equals", map[string]*Node{
		"leftField":  Constant(leftField),
		"rightField": Constant(rightField),
	})}
}

// Join is a deferred join definition.
type Join struct{ n *Node }

// Node implements Expression.
func (j Join) Node() *Node { return j.n }

// SaveFirst attaches the first matching secondary element to each primary
// element under matchKey. Unless outer is set, primaries without a match
// are dropped.
func SaveFirst(matchKey string, outer bool) Join {
	return Join{Invoke("Join.saveFirst", map[string]*Node{
		"matchKey": Constant(matchKey),
		"outer":    Constant(outer),
	})}
}

// Inverted keeps primary elements with no match.
func Inverted() Join {
	return Join{Invoke("Join.inverted", map[string]*Node{})}
}

// Apply runs the join.
func (j Join) Apply(primary, secondary ImageCollection, condition Filter) ImageCollection {
	return ImageCollection{Invoke("Join.apply", map[string]*Node{
		"join":      j.n,
		"primary":   primary.n,
		"secondary": secondary.n,
		"condition": condition.n,
	})}
}
