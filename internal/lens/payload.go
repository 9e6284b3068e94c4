package lens

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// Kind is the shape of a payload node
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the kind name used in error messages
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Node is a single value in the schema-free payload tree returned by the results page.
// The zero Node is null.
type Node struct {
	r gjson.Result
}

// ParseNode parses JSON text into a Node. The caller is expected to have validated it.
func ParseNode(raw string) Node {
	return Node{r: gjson.Parse(raw)}
}

// Kind reports the shape of the node
func (n Node) Kind() Kind {
	switch n.r.Type {
	case gjson.True, gjson.False:
		return KindBool
	case gjson.Number:
		return KindNumber
	case gjson.String:
		return KindString
	case gjson.JSON:
		if n.r.IsArray() {
			return KindArray
		}
		return KindObject
	default:
		return KindNull
	}
}

// Value converts the node into plain Go values ([]any, map[string]any, float64, string, bool, nil)
func (n Node) Value() any {
	return n.r.Value()
}

// Len returns the number of elements for arrays and zero for anything else
func (n Node) Len() int {
	if n.Kind() != KindArray {
		return 0
	}
	return len(n.r.Array())
}

// Elems returns the elements of an array node, or nil for anything else
func (n Node) Elems() []Node {
	if n.Kind() != KindArray {
		return nil
	}
	results := n.r.Array()
	elems := make([]Node, len(results))
	for i, r := range results {
		elems[i] = Node{r: r}
	}
	return elems
}

// Index returns element i of an array node
func (n Node) Index(i int) (Node, bool) {
	if i < 0 || n.Kind() != KindArray {
		return Node{}, false
	}
	child := n.r.Get(strconv.Itoa(i))
	if !child.Exists() {
		return Node{}, false
	}
	return Node{r: child}, true
}

// Key returns member key of an object node
func (n Node) Key(key string) (Node, bool) {
	if n.Kind() != KindObject {
		return Node{}, false
	}
	child := n.r.Get(gjson.Escape(key))
	if !child.Exists() {
		return Node{}, false
	}
	return Node{r: child}, true
}

// At walks a positional path through nested arrays. Every step checks that the
// current node is an array and that the index exists.
func (n Node) At(path ...int) (Node, bool) {
	cur := n
	for _, i := range path {
		next, ok := cur.Index(i)
		if !ok {
			return Node{}, false
		}
		cur = next
	}
	return cur, true
}

// Str returns the string value of a string node
func (n Node) Str() (string, bool) {
	if n.Kind() != KindString {
		return "", false
	}
	return n.r.Str, true
}

// Num returns the numeric value of a number node
func (n Node) Num() (float64, bool) {
	if n.Kind() != KindNumber {
		return 0, false
	}
	return n.r.Num, true
}

// optionalString resolves path and returns its string value, or ""
func optionalString(n Node, path ...int) string {
	child, ok := n.At(path...)
	if !ok {
		return ""
	}
	s, _ := child.Str()
	return s
}

// lookup resolves path for a required field and reports why it fails
func lookup(n Node, field string, path []int) (Node, error) {
	cur := n
	for depth, i := range path {
		if cur.Kind() != KindArray {
			return Node{}, &ParseError{
				Field:  field,
				Path:   path,
				Entry:  -1,
				Reason: "expected array at depth " + strconv.Itoa(depth) + ", got " + cur.Kind().String(),
			}
		}
		next, ok := cur.Index(i)
		if !ok {
			return Node{}, &ParseError{
				Field:  field,
				Path:   path,
				Entry:  -1,
				Reason: "index " + strconv.Itoa(i) + " out of range at depth " + strconv.Itoa(depth),
			}
		}
		cur = next
	}
	return cur, nil
}

// requireString resolves a required string field
func requireString(n Node, field string, path ...int) (string, error) {
	child, err := lookup(n, field, path)
	if err != nil {
		return "", err
	}
	s, ok := child.Str()
	if !ok {
		return "", &ParseError{Field: field, Path: path, Entry: -1, Reason: "expected string, got " + child.Kind().String()}
	}
	return s, nil
}

// requireNumber resolves a required number field
func requireNumber(n Node, field string, path ...int) (float64, error) {
	child, err := lookup(n, field, path)
	if err != nil {
		return 0, err
	}
	v, ok := child.Num()
	if !ok {
		return 0, &ParseError{Field: field, Path: path, Entry: -1, Reason: "expected number, got " + child.Kind().String()}
	}
	return v, nil
}

// requireArray checks that n itself is an array
func requireArray(n Node, field string) error {
	if n.Kind() != KindArray {
		return &ParseError{Field: field, Entry: -1, Reason: "expected array, got " + n.Kind().String()}
	}
	return nil
}
