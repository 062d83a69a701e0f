package scalar

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"math/bits"
	"net/netip"
	"strings"
)

// Family is an IP address family.
type Family int

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

// Families lists the supported families in resolution order.
var Families = []Family{IPv4, IPv6}

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Bits is the address width of the family.
func (f Family) Bits() int {
	if f == IPv4 {
		return 32
	}
	return 128
}

func (f Family) matches(a netip.Addr) bool {
	if f == IPv4 {
		return a.Is4()
	}
	return a.Is6()
}

// Address is an IPv4 or IPv6 address without zone.
type Address struct {
	netip.Addr
}

// ParseAddress parses text as an address of family fam.
func ParseAddress(text string, fam Family) (Address, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(text))
	if err != nil {
		return Address{}, err
	}
	if a.Zone() != "" {
		return Address{}, fmt.Errorf("address %s must not carry a zone", text)
	}
	if !fam.matches(a) {
		return Address{}, fmt.Errorf("%s is not an %s address", text, fam)
	}
	return Address{a}, nil
}

// Network is a CIDR subnet. Offsets into a network are counted from its
// first (masked) address.
type Network struct {
	prefix netip.Prefix
}

// ParseNetwork parses text as a CIDR network of family fam.
func ParseNetwork(text string, fam Family) (Network, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(text))
	if err != nil {
		return Network{}, err
	}
	if !fam.matches(p.Addr()) {
		return Network{}, fmt.Errorf("%s is not an %s network", text, fam)
	}
	return Network{prefix: p}, nil
}

// MustParseNetwork is ParseNetwork for literals known to be valid.
func MustParseNetwork(text string, fam Family) Network {
	n, err := ParseNetwork(text, fam)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Network) String() string {
	return n.prefix.String()
}

// IsValid reports whether n holds a parsed network.
func (n Network) IsValid() bool {
	return n.prefix.IsValid()
}

// Prefix returns the network as written.
func (n Network) Prefix() netip.Prefix {
	return n.prefix
}

// Family returns the network's address family.
func (n Network) Family() Family {
	if n.prefix.Addr().Is4() {
		return IPv4
	}
	return IPv6
}

// First is the lowest address of the network.
func (n Network) First() netip.Addr {
	return n.prefix.Masked().Addr()
}

// HostBits is the number of address bits below the prefix.
func (n Network) HostBits() int {
	return n.prefix.Addr().BitLen() - n.prefix.Bits()
}

// Size is the number of addresses in the network.
func (n Network) Size() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(n.HostBits()))
}

// LastOffset is Size()-1, the highest valid offset.
func (n Network) LastOffset() *big.Int {
	return new(big.Int).Sub(n.Size(), big.NewInt(1))
}

// Contains reports whether a lies inside the network.
func (n Network) Contains(a netip.Addr) bool {
	return n.prefix.Masked().Contains(a)
}

// InRange reports whether offset addresses a host inside the network.
func (n Network) InRange(offset uint64) bool {
	hb := n.HostBits()
	return hb >= 64 || offset < uint64(1)<<uint(hb)
}

// AddressAt returns first+offset, or false if offset is out of range.
func (n Network) AddressAt(offset uint64) (netip.Addr, bool) {
	if !n.InRange(offset) {
		return netip.Addr{}, false
	}
	hi, lo := split128(n.First())
	lo, carry := bits.Add64(lo, offset, 0)
	return join128(hi+carry, lo, n.Family()), true
}

// Offset returns a-first, or false if a is outside the network or the
// distance does not fit 64 bits.
func (n Network) Offset(a netip.Addr) (uint64, bool) {
	if !n.Contains(a) {
		return 0, false
	}
	fhi, flo := split128(n.First())
	ahi, alo := split128(a)
	lo, borrow := bits.Sub64(alo, flo, 0)
	hi, _ := bits.Sub64(ahi, fhi, borrow)
	if hi != 0 {
		return 0, false
	}
	return lo, true
}

func split128(a netip.Addr) (hi, lo uint64) {
	b := a.As16()
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])
}

func join128(hi, lo uint64, fam Family) netip.Addr {
	if fam == IPv4 {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(lo))
		return netip.AddrFrom4(b)
	}
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], hi)
	binary.BigEndian.PutUint64(b[8:], lo)
	return netip.AddrFrom16(b)
}

// AddressRange is an inclusive range of addresses with Start <= Stop.
type AddressRange struct {
	start netip.Addr
	stop  netip.Addr
}

// ParseAddressRange parses "start-stop". The ends may be given in either
// order.
func ParseAddressRange(text string, fam Family) (AddressRange, error) {
	parts := strings.Split(text, "-")
	if len(parts) != 2 {
		return AddressRange{}, fmt.Errorf("expected start-stop")
	}
	start, err := ParseAddress(parts[0], fam)
	if err != nil {
		return AddressRange{}, fmt.Errorf("%s range start must be an %s address: %w", fam, fam, err)
	}
	stop, err := ParseAddress(parts[1], fam)
	if err != nil {
		return AddressRange{}, fmt.Errorf("%s range stop must be an %s address: %w", fam, fam, err)
	}
	if start.Compare(stop.Addr) > 0 {
		start, stop = stop, start
	}
	return AddressRange{start: start.Addr, stop: stop.Addr}, nil
}

func (r AddressRange) String() string {
	return r.start.String() + "-" + r.stop.String()
}

// Start is the lowest address of the range.
func (r AddressRange) Start() netip.Addr {
	return r.start
}

// Stop is the highest address of the range.
func (r AddressRange) Stop() netip.Addr {
	return r.stop
}

// Addrs returns every address of the range in ascending order.
func (r AddressRange) Addrs() []netip.Addr {
	var out []netip.Addr
	for a := r.start; a.IsValid(); a = a.Next() {
		out = append(out, a)
		if a == r.stop {
			break
		}
	}
	return out
}
