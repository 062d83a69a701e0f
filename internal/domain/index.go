package domain

import "nsct/internal/scalar"

// Domains is an insertion-ordered set of domains. The first domain added
// is the global domain.
type Domains struct {
	order  []*Domain
	byName map[string]*Domain
}

// NewDomains creates an empty set
func NewDomains() *Domains {
	return &Domains{byName: make(map[string]*Domain)}
}

// Add appends d, marking it global if it is the first. Adding a name twice
// replaces nothing and returns false.
func (s *Domains) Add(d *Domain) bool {
	if _, exists := s.byName[d.name]; exists {
		return false
	}
	d.global = len(s.order) == 0
	s.order = append(s.order, d)
	s.byName[d.name] = d
	return true
}

// Get looks up a domain by name
func (s *Domains) Get(name string) (*Domain, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// All returns the domains in document order
func (s *Domains) All() []*Domain {
	return s.order
}

// Len is the number of domains
func (s *Domains) Len() int {
	return len(s.order)
}

// MACEntry is one registration in a MACIndex
type MACEntry struct {
	MAC       scalar.MAC
	Interface *DeviceInterface
}

// MACIndex maps every MAC of a definition to its device interface and
// enforces uniqueness.
type MACIndex struct {
	order  []scalar.MAC
	owners map[scalar.MAC]*DeviceInterface
}

// NewMACIndex creates an empty index
func NewMACIndex() *MACIndex {
	return &MACIndex{owners: make(map[scalar.MAC]*DeviceInterface)}
}

// Register records di as the owner of mac. If mac is already owned it
// returns the existing owner and true and leaves the index unchanged.
func (m *MACIndex) Register(mac scalar.MAC, di *DeviceInterface) (*DeviceInterface, bool) {
	if prev, ok := m.owners[mac]; ok {
		return prev, true
	}
	m.owners[mac] = di
	m.order = append(m.order, mac)
	return nil, false
}

// Lookup returns the owner of mac
func (m *MACIndex) Lookup(mac scalar.MAC) (*DeviceInterface, bool) {
	di, ok := m.owners[mac]
	return di, ok
}

// Entries returns the registrations in document order
func (m *MACIndex) Entries() []MACEntry {
	out := make([]MACEntry, len(m.order))
	for i, mac := range m.order {
		out[i] = MACEntry{MAC: mac, Interface: m.owners[mac]}
	}
	return out
}

// Len is the number of registered MACs
func (m *MACIndex) Len() int {
	return len(m.order)
}
