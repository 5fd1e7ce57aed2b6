package locationsharing

// node wraps a decoded JSON value and allows positional lookups that never
// fail hard. Any lookup on a missing index or a non-array yields an empty node.
type node struct {
	value any
	ok    bool
}

func newNode(v any) node {
	return node{value: v, ok: v != nil}
}

// at follows the given array indices.
func (n node) at(path ...int) node {
	cur := n
	for _, i := range path {
		arr, ok := cur.array()
		if !ok || i < 0 || i >= len(arr) {
			return node{}
		}
		cur = newNode(arr[i])
	}
	return cur
}

func (n node) array() ([]any, bool) {
	if !n.ok {
		return nil, false
	}
	arr, ok := n.value.([]any)
	return arr, ok
}

// str returns the value if it is a non-empty string.
func (n node) str() (string, bool) {
	if !n.ok {
		return "", false
	}
	s, ok := n.value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (n node) float() (float64, bool) {
	if !n.ok {
		return 0, false
	}
	f, ok := n.value.(float64)
	return f, ok
}
