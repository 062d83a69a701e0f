package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a loaded YAML source with its tagged scalars decoded.
type Document struct {
	name   string
	root   yaml.Node
	tags   TagTable
	values map[*yaml.Node]any
}

var yamlErrorLine = regexp.MustCompile(`^(?:yaml: )?line (\d+): (.*)$`)

// LoadFile reads and loads the document at path. The file is closed before
// LoadFile returns.
func LoadFile(path string, tags TagTable) (*Fragment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SchemaError{Location: NewLocation(path), Message: err.Error()}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &SchemaError{Location: NewLocation(path), Message: err.Error()}
	}
	return Load(path, data, tags)
}

// Load parses data as a YAML document named name, decodes every tagged
// scalar through tags and returns the root fragment.
func Load(name string, data []byte, tags TagTable) (*Fragment, error) {
	doc := &Document{
		name:   name,
		tags:   tags,
		values: make(map[*yaml.Node]any),
	}
	if err := yaml.Unmarshal(data, &doc.root); err != nil {
		return nil, syntaxError(name, err)
	}

	content := doc.content()
	root := &Fragment{
		doc:  doc,
		node: content,
		loc:  Location{File: name, Line: content.Line, Column: content.Column},
	}
	if err := doc.decode(root); err != nil {
		return nil, err
	}
	return root, nil
}

// content returns the top-level node, substituting a null scalar at 1:1 for
// an empty document.
func (d *Document) content() *yaml.Node {
	if d.root.Kind == yaml.DocumentNode && len(d.root.Content) > 0 {
		return d.root.Content[0]
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Line: 1, Column: 1}
}

// decode walks the tree below f decoding every tagged scalar. It stops at
// the first failure.
func (d *Document) decode(f *Fragment) error {
	n := f.node
	if n.Kind == yaml.AliasNode {
		return nil
	}

	if strings.HasPrefix(n.Tag, "!") && !strings.HasPrefix(n.Tag, "!!") {
		codec, ok := d.tags[n.Tag]
		if !ok {
			return f.Errorf("unknown tag %s", n.Tag)
		}
		if n.Kind != yaml.ScalarNode {
			return f.Errorf("expected %s scalar, found %s", codec.Description, f.Kind())
		}
		v, err := codec.Decode(n.Value)
		if err != nil {
			return f.Errorf("expected %s scalar, found %q: %v", codec.Description, n.Value, err)
		}
		d.values[n] = v
		return nil
	}

	switch n.Kind {
	case yaml.MappingNode:
		items, err := f.Items()
		if err != nil {
			return err
		}
		seen := make(map[string]int, len(items))
		for i, item := range items {
			key := n.Content[2*i]
			if line, dup := seen[item.Key]; dup {
				return item.Fragment.Errorf("mapping key '%s' already defined at line %d", item.Key, line)
			}
			seen[item.Key] = key.Line
			if err := d.decode(item.Fragment); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		elements, err := f.Elements()
		if err != nil {
			return err
		}
		for _, e := range elements {
			if err := d.decode(e.Fragment); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dump writes the document in canonical form: yaml.v3 output with two-space
// indentation, tags and quoting preserved from the source.
func (d *Document) Dump(w io.Writer) error {
	if d.root.Kind == 0 {
		return nil
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		enc.Close()
		return fmt.Errorf("encode %s: %w", d.name, err)
	}
	return enc.Close()
}

func syntaxError(name string, err error) error {
	msg := err.Error()
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		msg = typeErr.Errors[0]
	}

	loc := NewLocation(name)
	if m := yamlErrorLine.FindStringSubmatch(msg); m != nil {
		loc.Line, _ = strconv.Atoi(m[1])
		msg = m[2]
	}
	return &SchemaError{Location: loc, Message: msg}
}
