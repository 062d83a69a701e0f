package domain

import (
	"fmt"

	"nsct/internal/document"
	"nsct/internal/scalar"
)

// RecordType names a DNS record set held by a domain
type RecordType string

const (
	RecordMX    RecordType = "mx"
	RecordCNAME RecordType = "cname"
	RecordTXT   RecordType = "txt"
	RecordA     RecordType = "a"
	RecordAAAA  RecordType = "aaaa"
)

// RecordTypes lists the supported record types in parse order
var RecordTypes = []RecordType{RecordMX, RecordCNAME, RecordTXT, RecordA, RecordAAAA}

// kind is the document tag kind accepted for records of this type
func (t RecordType) kind() document.Kind {
	switch t {
	case RecordMX:
		return scalar.KindMX
	case RecordCNAME:
		return scalar.KindCNAME
	case RecordTXT:
		return scalar.KindTXT
	case RecordA:
		return scalar.KindA
	}
	return scalar.KindAAAA
}

// addressRecord returns the record type carrying addresses of family f
func addressRecord(f scalar.Family) RecordType {
	if f == scalar.IPv4 {
		return RecordA
	}
	return RecordAAAA
}

// RecordSet maps record names to sets of values. Names keep the order in
// which they were first added; values of one name are unique by their
// text form and keep insertion order.
type RecordSet struct {
	names  []string
	values map[string][]fmt.Stringer
}

// NewRecordSet creates an empty record set
func NewRecordSet() *RecordSet {
	return &RecordSet{values: make(map[string][]fmt.Stringer)}
}

// Add inserts v under name unless an equal value is already present.
func (s *RecordSet) Add(name string, v fmt.Stringer) {
	existing, ok := s.values[name]
	if !ok {
		s.names = append(s.names, name)
	}
	for _, e := range existing {
		if e.String() == v.String() {
			return
		}
	}
	s.values[name] = append(existing, v)
}

// Names returns the record names in insertion order
func (s *RecordSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Values returns the values recorded under name
func (s *RecordSet) Values(name string) []fmt.Stringer {
	return s.values[name]
}

// Len is the number of distinct names
func (s *RecordSet) Len() int {
	return len(s.names)
}
