package domain

import (
	"fmt"
	"log/slog"

	"nsct/internal/document"
	"nsct/internal/scalar"
)

// hostnameSeparator joins device and interface names of non-primary interfaces
const hostnameSeparator = "-"

// Request is a pending allocation of a device interface, resolved during
// compute. Fragment is where errors are reported.
type Request struct {
	Allocation scalar.Allocation
	Domain     *Domain
	Fragment   *document.Fragment
}

// DeviceInterface is a named interface of a device
type DeviceInterface struct {
	name     string
	device   *Device
	primary  bool
	mac      *scalar.MAC
	requests map[scalar.Family][]Request
}

// Name returns the interface name
func (di *DeviceInterface) Name() string {
	return di.name
}

// Device returns the owning device
func (di *DeviceInterface) Device() *Device {
	return di.device
}

// Primary reports whether this is the first interface of its device
func (di *DeviceInterface) Primary() bool {
	return di.primary
}

// MAC returns the interface hardware address if one is defined
func (di *DeviceInterface) MAC() (scalar.MAC, bool) {
	if di.mac == nil {
		return scalar.MAC{}, false
	}
	return *di.mac, true
}

// Requests returns the pending allocations of family f in document order
func (di *DeviceInterface) Requests(f scalar.Family) []Request {
	return di.requests[f]
}

// Hostname is the device name for the primary interface and
// device-interface for the others.
func (di *DeviceInterface) Hostname() string {
	if di.primary {
		return di.device.name
	}
	return di.device.name + hostnameSeparator + di.name
}

func (di *DeviceInterface) String() string {
	return di.device.name + "/" + di.name
}

// AddRequest queues an allocation for family f.
func (di *DeviceInterface) AddRequest(f scalar.Family, r Request) {
	di.requests[f] = append(di.requests[f], r)
}

// Compute resolves every pending allocation, IPv4 first, each family in
// request order. The first failure aborts.
func (di *DeviceInterface) Compute() error {
	for _, f := range scalar.Families {
		for _, r := range di.requests[f] {
			addr, err := r.Domain.Allocate(r.Fragment, f, r.Allocation, di)
			if err != nil {
				return err
			}
			slog.Debug("allocated address",
				"interface", di.String(), "family", f.String(), "domain", r.Domain.Name(), "address", addr.String())
		}
	}
	return nil
}

// Device is a physical device with ordered interfaces
type Device struct {
	name       string
	interfaces []*DeviceInterface
}

// NewDevice creates a device without interfaces
func NewDevice(name string) *Device {
	return &Device{name: name}
}

// Name returns the device name
func (d *Device) Name() string {
	return d.name
}

func (d *Device) String() string {
	return d.name
}

// AddInterface appends an interface. The first one added is primary.
func (d *Device) AddInterface(name string, mac *scalar.MAC) *DeviceInterface {
	di := &DeviceInterface{
		name:     name,
		device:   d,
		primary:  len(d.interfaces) == 0,
		mac:      mac,
		requests: make(map[scalar.Family][]Request),
	}
	d.interfaces = append(d.interfaces, di)
	return di
}

// Interfaces returns the interfaces in document order
func (d *Device) Interfaces() []*DeviceInterface {
	return d.interfaces
}

// Interface looks up an interface by name
func (d *Device) Interface(name string) (*DeviceInterface, bool) {
	for _, di := range d.interfaces {
		if di.name == name {
			return di, true
		}
	}
	return nil, false
}

// Compute resolves the allocations of every interface in order.
func (d *Device) Compute() error {
	for _, di := range d.interfaces {
		if err := di.Compute(); err != nil {
			return err
		}
	}
	return nil
}

// ParseDevice builds a device from its mapping of interfaces. Allocation
// targets are resolved against domains and MACs are registered in macs.
func ParseDevice(name string, f *document.Fragment, domains *Domains, macs *MACIndex) (*Device, error) {
	slog.Debug("parsing device", "device", name, "at", f.String())

	items, err := f.Items()
	if err != nil {
		return nil, err
	}

	d := NewDevice(name)
	for _, item := range items {
		if err := parseInterface(d, item.Key, item.Fragment, domains, macs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func parseInterface(d *Device, name string, f *document.Fragment, domains *Domains, macs *MACIndex) error {
	mac, macFrag, err := document.Get(f, document.Path{"mac"}, false, scalar.MAC{}, scalar.KindMAC)
	if err != nil {
		return err
	}

	var macp *scalar.MAC
	if macFrag != nil {
		macp = &mac
	}
	di := d.AddInterface(name, macp)

	if macp != nil {
		if prev, dup := macs.Register(mac, di); dup {
			return macFrag.AllocationErrorf("MAC address %s already defined for device interface %s", mac, prev)
		}
	}

	for _, fam := range scalar.Families {
		if err := parseRequests(di, fam, f, domains); err != nil {
			return err
		}
	}
	return nil
}

// parseRequests reads the ipv4 or ipv6 key of an interface: a single
// allocation or a list of them.
func parseRequests(di *DeviceInterface, fam scalar.Family, f *document.Fragment, domains *Domains) error {
	v, err := f.Lookup(document.Path{fam.String()}, false, scalar.KindAllocation, document.KindSequence)
	if err != nil || v == nil {
		return err
	}

	elements := []document.Element{{Index: 0, Fragment: v}}
	if v.Kind() == document.KindSequence {
		if elements, err = v.Elements(); err != nil {
			return err
		}
	}

	for _, e := range elements {
		a, err := document.As[scalar.Allocation](e.Fragment, scalar.KindAllocation)
		if err != nil {
			return err
		}
		target, ok := domains.Get(a.Domain)
		if !ok {
			return e.Fragment.AllocationErrorf("unknown domain '%s' in %s allocation", a.Domain, ordinal(e.Index+1))
		}
		di.AddRequest(fam, Request{Allocation: a, Domain: target, Fragment: e.Fragment})
	}
	return nil
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
