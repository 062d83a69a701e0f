package document

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names the runtime type of a node. Plain YAML nodes map to the core
// kinds below; tagged scalars use the kind registered in the TagTable.
type Kind string

const (
	KindMapping  Kind = "mapping"
	KindSequence Kind = "sequence"
	KindString   Kind = "str"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindNull     Kind = "null"
)

// TagCodec decodes the text of one scalar tag.
type TagCodec struct {
	Kind Kind
	// Description completes "expected ... scalar", e.g. "an IPv4 network".
	Description string
	Decode      func(text string) (any, error)
}

// TagTable maps a local tag such as "!mac" to its codec. A table is built by
// the caller and handed to Load; there is no package-level registry.
type TagTable map[string]TagCodec

// Add registers a codec under tag. It panics on a duplicate tag, which is a
// programming error in the table's construction.
func (t TagTable) Add(tag string, codec TagCodec) {
	if !strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "!!") {
		panic(fmt.Sprintf("document: tag %q must be a local tag", tag))
	}
	if _, exists := t[tag]; exists {
		panic(fmt.Sprintf("document: tag %q already registered", tag))
	}
	t[tag] = codec
}

// Tags returns the registered tags in sorted order.
func (t TagTable) Tags() []string {
	tags := make([]string, 0, len(t))
	for tag := range t {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// kindOf returns the Kind of a core YAML tag.
func kindOf(tag string) Kind {
	switch tag {
	case "!!map":
		return KindMapping
	case "!!seq":
		return KindSequence
	case "!!str", "":
		return KindString
	case "!!int":
		return KindInt
	case "!!float":
		return KindFloat
	case "!!bool":
		return KindBool
	case "!!null":
		return KindNull
	}
	return Kind(strings.TrimLeft(tag, "!"))
}
