package domain

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sort"

	"nsct/internal/document"
	"nsct/internal/scalar"
)

// Occupant holds an allocation table slot: either a reservation label or
// the device interface the address was allocated to.
type Occupant struct {
	Reservation string
	Interface   *DeviceInterface
}

func (o Occupant) String() string {
	if o.Interface != nil {
		return o.Interface.String()
	}
	return o.Reservation
}

// Allocation is one entry of a domain's allocation table
type Allocation struct {
	Offset   uint64
	Address  netip.Addr
	Occupant Occupant
}

// StaticLease is a fixed MAC to address binding handed to DHCP services
type StaticLease struct {
	MAC      scalar.MAC
	Address  netip.Addr
	Hostname string
	Domain   string
}

// LeaseRegistrar receives the static leases of a domain. DHCP services
// register themselves on a domain at parse time.
type LeaseRegistrar interface {
	AddStaticLease(lease StaticLease)
}

// Domain is a named address and DNS scope
type Domain struct {
	name     string
	global   bool
	fragment *document.Fragment

	subnets     map[scalar.Family]scalar.Network
	allocations map[scalar.Family]map[uint64]Occupant
	claimed     map[scalar.Family][]uint64
	records     map[RecordType]*RecordSet
	dhcp        map[scalar.Family][]LeaseRegistrar
}

// NewDomain creates a domain. Either subnet may be the zero Network.
func NewDomain(name string, ipv4, ipv6 scalar.Network) *Domain {
	d := &Domain{
		name:        name,
		subnets:     make(map[scalar.Family]scalar.Network),
		allocations: make(map[scalar.Family]map[uint64]Occupant),
		claimed:     make(map[scalar.Family][]uint64),
		records:     make(map[RecordType]*RecordSet),
		dhcp:        make(map[scalar.Family][]LeaseRegistrar),
	}
	if ipv4.IsValid() {
		d.subnets[scalar.IPv4] = ipv4
	}
	if ipv6.IsValid() {
		d.subnets[scalar.IPv6] = ipv6
	}
	for _, f := range scalar.Families {
		d.allocations[f] = make(map[uint64]Occupant)
	}
	for _, t := range RecordTypes {
		d.records[t] = NewRecordSet()
	}
	return d
}

// Name returns the domain name
func (d *Domain) Name() string {
	return d.name
}

func (d *Domain) String() string {
	return d.name
}

// Global reports whether this is the first domain of its definition
func (d *Domain) Global() bool {
	return d.global
}

// Fragment returns the document node the domain was parsed from, if any
func (d *Domain) Fragment() *document.Fragment {
	return d.fragment
}

// Subnet returns the domain's subnet for family f
func (d *Domain) Subnet(f scalar.Family) (scalar.Network, bool) {
	n, ok := d.subnets[f]
	return n, ok
}

// Records returns the record set of type t
func (d *Domain) Records(t RecordType) *RecordSet {
	return d.records[t]
}

// Occupant returns the occupant of offset in the family f table
func (d *Domain) Occupant(f scalar.Family, offset uint64) (Occupant, bool) {
	o, ok := d.allocations[f][offset]
	return o, ok
}

// Allocations returns the family f allocation table ordered by offset
func (d *Domain) Allocations(f scalar.Family) []Allocation {
	subnet := d.subnets[f]
	table := d.allocations[f]
	out := make([]Allocation, 0, len(table))
	for offset, o := range table {
		addr, _ := subnet.AddressAt(offset)
		out = append(out, Allocation{Offset: offset, Address: addr, Occupant: o})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// ClaimOrder returns the family f allocation table in the order its slots
// were first taken.
func (d *Domain) ClaimOrder(f scalar.Family) []Allocation {
	subnet := d.subnets[f]
	out := make([]Allocation, 0, len(d.claimed[f]))
	for _, offset := range d.claimed[f] {
		addr, _ := subnet.AddressAt(offset)
		out = append(out, Allocation{Offset: offset, Address: addr, Occupant: d.allocations[f][offset]})
	}
	return out
}

// occupy fills a slot, keeping its position if it was already taken
func (d *Domain) occupy(f scalar.Family, offset uint64, o Occupant) {
	if _, taken := d.allocations[f][offset]; !taken {
		d.claimed[f] = append(d.claimed[f], offset)
	}
	d.allocations[f][offset] = o
}

// AddDHCPService registers s to receive static leases for family f
func (d *Domain) AddDHCPService(f scalar.Family, s LeaseRegistrar) {
	d.dhcp[f] = append(d.dhcp[f], s)
}

// ReserveAddressRange labels every address of r in the family f table and
// adds a dhcp-<offset>.<domain> address record for it. It must run before
// any allocation into the domain.
func (d *Domain) ReserveAddressRange(f scalar.Family, r scalar.AddressRange) error {
	subnet, ok := d.subnets[f]
	if !ok {
		return fmt.Errorf("no %s subnet defined on domain %s", f, d.name)
	}
	slog.Debug("reserving DHCP address range", "domain", d.name, "family", f, "range", r.String())

	label := fmt.Sprintf("DHCP allocation range %s", r)
	records := d.records[addressRecord(f)]
	for _, a := range r.Addrs() {
		offset, ok := subnet.Offset(a)
		if !ok {
			return fmt.Errorf("address %s of range %s is outside %s subnet %s of domain %s", a, r, f, subnet, d.name)
		}
		d.occupy(f, offset, Occupant{Reservation: label})
		records.Add(fmt.Sprintf("dhcp-%d.%s", offset, d.name), scalar.Address{Addr: a})
	}
	return nil
}

// Allocate resolves allocation a for interface di in family f and returns
// the address. Offset and EUI requests take their slot exclusively; Alias
// requests never check or claim a slot. Errors are reported at frag.
func (d *Domain) Allocate(frag *document.Fragment, f scalar.Family, a scalar.Allocation, di *DeviceInterface) (netip.Addr, error) {
	var (
		addr netip.Addr
		err  error
	)

	switch a.Strategy {
	case scalar.StrategyEUI:
		if f != scalar.IPv6 {
			return netip.Addr{}, frag.AllocationErrorf("cannot allocate EUI address from an %s subnet", f)
		}
		if _, ok := d.subnets[scalar.IPv6]; !ok {
			return netip.Addr{}, frag.AllocationErrorf("no ipv6 subnet defined on domain %s", d.name)
		}
		mac, ok := di.MAC()
		if !ok {
			return netip.Addr{}, frag.AllocationErrorf(
				"no MAC address defined on device interface %s to generate EUI ipv6 address", di)
		}
		addr, err = d.claim(frag, f, mac.InterfaceID(), di, true)
	case scalar.StrategyAlias:
		if _, ok := d.subnets[f]; !ok {
			return netip.Addr{}, frag.AllocationErrorf("no %s subnet defined on domain %s", f, d.name)
		}
		addr, err = d.claim(frag, f, a.Offset, di, false)
	case scalar.StrategyOffset:
		if _, ok := d.subnets[f]; !ok {
			return netip.Addr{}, frag.AllocationErrorf("no %s subnet defined on domain %s", f, d.name)
		}
		addr, err = d.claim(frag, f, a.Offset, di, true)
	default:
		return netip.Addr{}, frag.AllocationErrorf("unknown allocation strategy %s", a.Strategy)
	}
	if err != nil {
		return netip.Addr{}, err
	}

	if mac, ok := di.MAC(); ok && a.Strategy == scalar.StrategyOffset {
		lease := StaticLease{MAC: mac, Address: addr, Hostname: di.Hostname(), Domain: d.name}
		for _, s := range d.dhcp[f] {
			s.AddStaticLease(lease)
		}
	}

	d.records[addressRecord(f)].Add(di.Hostname(), scalar.Address{Addr: addr})
	return addr, nil
}

// claim returns the address at offset, occupying the slot for di when
// exclusive is set.
func (d *Domain) claim(frag *document.Fragment, f scalar.Family, offset uint64, di *DeviceInterface, exclusive bool) (netip.Addr, error) {
	subnet := d.subnets[f]
	table := d.allocations[f]

	if exclusive {
		if o, taken := table[offset]; taken {
			addr, _ := subnet.AddressAt(offset)
			if o.Interface != nil {
				return netip.Addr{}, frag.AllocationErrorf(
					"address %s in %s subnet of domain %s allocated to device interface %s", addr, f, d.name, o.Interface)
			}
			return netip.Addr{}, frag.AllocationErrorf(
				"address %s in %s subnet of domain %s reserved for %s", addr, f, d.name, o.Reservation)
		}
	}

	addr, ok := subnet.AddressAt(offset)
	if !ok {
		return netip.Addr{}, frag.AllocationErrorf(
			"offset %d in %s subnet of domain %s is out of valid range 0..%s", offset, f, d.name, subnet.LastOffset())
	}
	if exclusive {
		d.occupy(f, offset, Occupant{Interface: di})
	}
	return addr, nil
}

// Compute runs domain-level checks after every allocation has landed.
func (d *Domain) Compute() error {
	return nil
}

// ParseDomain builds a domain from its document mapping.
func ParseDomain(name string, f *document.Fragment) (*Domain, error) {
	slog.Debug("parsing domain", "domain", name, "at", f.String())

	ipv4, _, err := document.Get(f, document.Path{"ipv4-subnet"}, false, scalar.Network{}, scalar.KindIPv4Network)
	if err != nil {
		return nil, err
	}
	ipv6, _, err := document.Get(f, document.Path{"ipv6-subnet"}, false, scalar.Network{}, scalar.KindIPv6Network)
	if err != nil {
		return nil, err
	}

	d := NewDomain(name, ipv4, ipv6)
	d.fragment = f

	for _, t := range RecordTypes {
		items, err := f.ItemsAt(document.Path{"records", string(t)}, false)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			v, err := item.Fragment.Value(t.kind())
			if err != nil {
				return nil, err
			}
			d.records[t].Add(item.Key, v.(fmt.Stringer))
		}
	}
	return d, nil
}
