package document

import (
	"fmt"
	"strings"
)

// Location identifies a node in a source document: file, 1-based line and
// column, and the breadcrumb of keys and list indices leading to it.
type Location struct {
	File   string
	Line   int
	Column int
	path   []string
}

// NewLocation returns a root location for file, at its first line and
// column.
func NewLocation(file string) Location {
	return Location{File: file, Line: 1, Column: 1}
}

// Child derives the location of a nested node. The receiver is not modified.
func (l Location) Child(line, column int, segment string) Location {
	path := make([]string, len(l.path), len(l.path)+1)
	copy(path, l.path)
	return Location{
		File:   l.File,
		Line:   line,
		Column: column,
		path:   append(path, segment),
	}
}

// Segments returns a copy of the breadcrumb path.
func (l Location) Segments() []string {
	out := make([]string, len(l.path))
	copy(out, l.path)
	return out
}

// Breadcrumb renders the path as key|key[index]|key.
func (l Location) Breadcrumb() string {
	var b strings.Builder
	for i, seg := range l.path {
		if i > 0 && !strings.HasPrefix(seg, "[") {
			b.WriteByte('|')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// String renders file:line:col: [breadcrumb]
func (l Location) String() string {
	where := fmt.Sprintf("%s:%d:%d:", l.File, l.Line, l.Column)
	if crumb := l.Breadcrumb(); crumb != "" {
		return where + " [" + crumb + "]"
	}
	return where
}

func indexSegment(i int) string {
	return fmt.Sprintf("[%d]", i+1)
}
