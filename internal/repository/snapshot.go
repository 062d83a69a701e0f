package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"nsct/internal/definition"
	"nsct/internal/domain"
	"nsct/internal/scalar"
	"nsct/internal/server"
)

// Snapshot is the computed state of a definition at one point in time
type Snapshot struct {
	RunID      string           `cbor:"1,keyasint"`
	Source     string           `cbor:"2,keyasint"`
	CreatedAt  time.Time        `cbor:"3,keyasint"`
	Nameserver string           `cbor:"4,keyasint"`
	Domains    []DomainSnapshot `cbor:"5,keyasint"`
}

// DomainSnapshot holds one domain's computed tables
type DomainSnapshot struct {
	Name        string             `cbor:"1,keyasint"`
	Allocations []AllocationRecord `cbor:"2,keyasint"`
	Records     []RecordEntry      `cbor:"3,keyasint"`
	Leases      []LeaseRecord      `cbor:"4,keyasint"`
}

// AllocationRecord is one occupied slot of a subnet. Interface is empty for
// reserved slots.
type AllocationRecord struct {
	Domain    string `cbor:"1,keyasint"`
	Family    string `cbor:"2,keyasint"`
	Offset    uint64 `cbor:"3,keyasint"`
	Address   string `cbor:"4,keyasint"`
	Occupant  string `cbor:"5,keyasint"`
	Interface string `cbor:"6,keyasint"`
}

// RecordEntry is one value of a DNS record set
type RecordEntry struct {
	Type  string `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint"`
	Value string `cbor:"3,keyasint"`
}

// LeaseRecord is one DHCP static lease
type LeaseRecord struct {
	MAC      string `cbor:"1,keyasint"`
	Address  string `cbor:"2,keyasint"`
	Hostname string `cbor:"3,keyasint"`
}

type leaseHolder interface {
	Leases() []domain.StaticLease
}

// NewSnapshot captures a computed definition under a fresh run id.
func NewSnapshot(def *definition.Definition, now time.Time) (*Snapshot, error) {
	if !def.Computed() {
		return nil, definition.ErrNotComputed
	}

	leases := map[string][]LeaseRecord{}
	for _, s := range def.Servers() {
		svc, ok := s.Service(server.CategoryIPv4DHCP)
		if !ok {
			continue
		}
		holder, ok := svc.(leaseHolder)
		if !ok {
			continue
		}
		for _, l := range holder.Leases() {
			leases[l.Domain] = append(leases[l.Domain], LeaseRecord{
				MAC:      l.MAC.String(),
				Address:  l.Address.String(),
				Hostname: l.Hostname,
			})
		}
	}

	snap := &Snapshot{
		RunID:      uuid.NewString(),
		Source:     def.Source(),
		CreatedAt:  now.UTC(),
		Nameserver: def.Nameserver(),
	}
	for _, d := range def.Domains() {
		ds := DomainSnapshot{Name: d.Name(), Leases: leases[d.Name()]}
		for _, f := range scalar.Families {
			for _, a := range d.Allocations(f) {
				rec := AllocationRecord{
					Domain:   d.Name(),
					Family:   f.String(),
					Offset:   a.Offset,
					Address:  a.Address.String(),
					Occupant: a.Occupant.String(),
				}
				if a.Occupant.Interface != nil {
					rec.Interface = a.Occupant.Interface.String()
				}
				ds.Allocations = append(ds.Allocations, rec)
			}
		}
		for _, t := range domain.RecordTypes {
			set := d.Records(t)
			for _, name := range set.Names() {
				for _, v := range set.Values(name) {
					ds.Records = append(ds.Records, RecordEntry{Type: string(t), Name: name, Value: v.String()})
				}
			}
		}
		snap.Domains = append(snap.Domains, ds)
	}
	return snap, nil
}

// AllocationRecords flattens the allocations of every domain
func (s *Snapshot) AllocationRecords() []AllocationRecord {
	var out []AllocationRecord
	for _, d := range s.Domains {
		out = append(out, d.Allocations...)
	}
	return out
}

// ChangeKind classifies an allocation difference between two snapshots
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeMoved   ChangeKind = "moved"
)

// Change is one allocation difference
type Change struct {
	Kind     ChangeKind
	Domain   string
	Family   string
	Occupant string
	Old      string
	New      string
}

func (c Change) String() string {
	switch c.Kind {
	case ChangeAdded:
		return fmt.Sprintf("%s %s %s in %s: %s", c.Kind, c.Family, c.Occupant, c.Domain, c.New)
	case ChangeRemoved:
		return fmt.Sprintf("%s %s %s in %s: %s", c.Kind, c.Family, c.Occupant, c.Domain, c.Old)
	}
	return fmt.Sprintf("%s %s %s in %s: %s -> %s", c.Kind, c.Family, c.Occupant, c.Domain, c.Old, c.New)
}

type occupantKey struct {
	domain, family, occupant string
}

// addressesByOccupant groups allocation addresses by occupant, keeping the
// order occupants first appear in.
func addressesByOccupant(s *Snapshot) ([]occupantKey, map[occupantKey][]string) {
	var keys []occupantKey
	m := map[occupantKey][]string{}
	if s == nil {
		return keys, m
	}
	for _, a := range s.AllocationRecords() {
		k := occupantKey{a.Domain, a.Family, a.Occupant}
		if _, ok := m[k]; !ok {
			keys = append(keys, k)
		}
		m[k] = append(m[k], a.Address)
	}
	return keys, m
}

// Changes lists allocations added, removed or moved between prev and cur,
// keyed by domain, family and occupant. A nil prev reports every current
// allocation as added. Reserved ranges compare by label, so resizing a
// range shows as adds and removes of its slots.
func Changes(prev, cur *Snapshot) []Change {
	prevKeys, was := addressesByOccupant(prev)
	curKeys, now := addressesByOccupant(cur)

	var out []Change
	for _, k := range curKeys {
		change := Change{Domain: k.domain, Family: k.family, Occupant: k.occupant}
		before, after := was[k], now[k]
		if len(before) == 1 && len(after) == 1 {
			if before[0] != after[0] {
				change.Kind, change.Old, change.New = ChangeMoved, before[0], after[0]
				out = append(out, change)
			}
			continue
		}
		for _, addr := range difference(after, before) {
			c := change
			c.Kind, c.New = ChangeAdded, addr
			out = append(out, c)
		}
		for _, addr := range difference(before, after) {
			c := change
			c.Kind, c.Old = ChangeRemoved, addr
			out = append(out, c)
		}
	}
	for _, k := range prevKeys {
		if _, ok := now[k]; ok {
			continue
		}
		for _, addr := range was[k] {
			out = append(out, Change{Kind: ChangeRemoved, Domain: k.domain, Family: k.family, Occupant: k.occupant, Old: addr})
		}
	}
	return out
}

func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}
