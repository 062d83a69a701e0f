package document

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Path is a pre-split sequence of mapping keys, e.g. Path{"ssh", "host"}.
type Path []string

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Fragment is a node of a loaded document bound to its Location. Fragments
// never modify the underlying document.
type Fragment struct {
	doc  *Document
	node *yaml.Node
	loc  Location
}

// Item is one entry of a mapping fragment.
type Item struct {
	Key      string
	Fragment *Fragment
}

// Element is one entry of a sequence fragment.
type Element struct {
	Index    int
	Fragment *Fragment
}

// Location returns where the fragment was found.
func (f *Fragment) Location() Location {
	return f.loc
}

func (f *Fragment) String() string {
	return f.loc.String()
}

// Kind reports the runtime type of the fragment's node.
func (f *Fragment) Kind() Kind {
	n := deref(f.node)
	switch n.Kind {
	case yaml.MappingNode:
		return KindMapping
	case yaml.SequenceNode:
		return KindSequence
	}
	if codec, ok := f.doc.tags[n.Tag]; ok {
		return codec.Kind
	}
	return kindOf(n.Tag)
}

// Errorf returns a *SchemaError located at the fragment.
func (f *Fragment) Errorf(format string, args ...any) error {
	return &SchemaError{Location: f.loc, Message: fmt.Sprintf(format, args...)}
}

// AllocationErrorf returns an *AllocationError located at the fragment.
func (f *Fragment) AllocationErrorf(format string, args ...any) error {
	return &AllocationError{Location: f.loc, Message: fmt.Sprintf(format, args...)}
}

// Value returns the unwrapped value of the fragment if its kind is one of
// expected. Tagged scalars yield their decoded type, plain scalars yield
// string, int, float64, bool or nil; mappings and sequences yield nil.
func (f *Fragment) Value(expected ...Kind) (any, error) {
	return f.valueFor("", expected)
}

func (f *Fragment) valueFor(source string, expected []Kind) (any, error) {
	kind := f.Kind()
	if len(expected) > 0 && !containsKind(expected, kind) {
		return nil, f.typeError(kind, source, expected)
	}

	n := deref(f.node)
	if _, ok := f.doc.tags[n.Tag]; ok {
		return f.doc.values[n], nil
	}

	switch kind {
	case KindMapping, KindSequence, KindNull:
		return nil, nil
	case KindInt:
		var v int
		if err := n.Decode(&v); err != nil {
			return nil, f.Errorf("invalid integer %q: %v", n.Value, err)
		}
		return v, nil
	case KindFloat:
		var v float64
		if err := n.Decode(&v); err != nil {
			return nil, f.Errorf("invalid float %q: %v", n.Value, err)
		}
		return v, nil
	case KindBool:
		var v bool
		if err := n.Decode(&v); err != nil {
			return nil, f.Errorf("invalid boolean %q: %v", n.Value, err)
		}
		return v, nil
	}
	return n.Value, nil
}

func (f *Fragment) typeError(actual Kind, source string, expected []Kind) error {
	names := make([]string, len(expected))
	for i, k := range expected {
		names[i] = string(k)
	}
	plural := ""
	if len(names) > 1 {
		plural = "s"
	}
	if source != "" {
		source += " "
	}
	return f.Errorf("value of type %s %sis not of expected type%s %s",
		actual, source, plural, strings.Join(names, " or "))
}

// Lookup walks path through nested mappings and returns the fragment at its
// end, checked against expected. Each step derives a child fragment, so
// errors point at the offending node. When an optional key is absent Lookup
// returns nil, nil.
func (f *Fragment) Lookup(path Path, required bool, expected ...Kind) (*Fragment, error) {
	cur := f
	for i, key := range path {
		child, err := cur.child(key, required)
		if err != nil || child == nil {
			return nil, err
		}

		want := []Kind{KindMapping}
		if i == len(path)-1 {
			want = expected
		}
		if _, err := child.valueFor("for key "+key, want); err != nil {
			return nil, err
		}
		cur = child
	}
	return cur, nil
}

func (f *Fragment) child(key string, required bool) (*Fragment, error) {
	n := deref(f.node)
	if n.Kind != yaml.MappingNode {
		return nil, f.Errorf("expected a mapping to look up key '%s', found %s", key, f.Kind())
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return f.derive(n.Content[i+1], key), nil
		}
	}
	if required {
		return nil, f.Errorf("missing required key '%s'", key)
	}
	return nil, nil
}

func (f *Fragment) derive(n *yaml.Node, segment string) *Fragment {
	target := deref(n)
	return &Fragment{
		doc:  f.doc,
		node: n,
		loc:  f.loc.Child(target.Line, target.Column, segment),
	}
}

// Items enumerates a mapping fragment in document order.
func (f *Fragment) Items() ([]Item, error) {
	n := deref(f.node)
	if n.Kind != yaml.MappingNode {
		return nil, f.typeError(f.Kind(), "", []Kind{KindMapping})
	}
	items := make([]Item, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		items = append(items, Item{Key: key, Fragment: f.derive(n.Content[i+1], key)})
	}
	return items, nil
}

// Elements enumerates a sequence fragment in document order.
func (f *Fragment) Elements() ([]Element, error) {
	n := deref(f.node)
	if n.Kind != yaml.SequenceNode {
		return nil, f.typeError(f.Kind(), "", []Kind{KindSequence})
	}
	elements := make([]Element, len(n.Content))
	for i, c := range n.Content {
		elements[i] = Element{Index: i, Fragment: f.derive(c, indexSegment(i))}
	}
	return elements, nil
}

// ItemsAt looks up a mapping at path and enumerates it. An absent optional
// mapping yields no items.
func (f *Fragment) ItemsAt(path Path, required bool) ([]Item, error) {
	m, err := f.Lookup(path, required, KindMapping)
	if err != nil || m == nil {
		return nil, err
	}
	return m.Items()
}

// Dump re-serializes the whole document the fragment belongs to.
func (f *Fragment) Dump(w io.Writer) error {
	return f.doc.Dump(w)
}

// As returns the fragment's value as T, checked against expected.
func As[T any](f *Fragment, expected ...Kind) (T, error) {
	var zero T
	v, err := f.Value(expected...)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, f.Errorf("value of type %s cannot be used as %T", f.Kind(), zero)
	}
	return t, nil
}

// Get looks up path below f and returns its value as T together with the
// value's fragment. An absent optional key yields def and a nil fragment.
func Get[T any](f *Fragment, path Path, required bool, def T, expected ...Kind) (T, *Fragment, error) {
	child, err := f.Lookup(path, required, expected...)
	if err != nil || child == nil {
		return def, nil, err
	}
	v, err := As[T](child, expected...)
	if err != nil {
		return def, nil, err
	}
	return v, child, nil
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
