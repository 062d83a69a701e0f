package scalar

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// MAC is a 48-bit hardware address. It is comparable and usable as a map key.
type MAC [6]byte

// ParseMAC parses six colon-separated hex octets, e.g. 00:01:02:03:04:05.
func ParseMAC(text string) (MAC, error) {
	var mac MAC
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != len(mac) {
		return MAC{}, fmt.Errorf("expected %d colon-separated octets, got %d", len(mac), len(parts))
	}
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return MAC{}, fmt.Errorf("invalid octet %q", p)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return MAC{}, fmt.Errorf("invalid octet %q", p)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}

// String renders the MAC as lower-case, zero-padded, colon-separated octets.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// InterfaceID returns the modified EUI-64 interface identifier: ff:fe is
// inserted between the OUI and the NIC part and the universal/local bit is
// inverted.
func (m MAC) InterfaceID() uint64 {
	eui := [8]byte{m[0] ^ 0x02, m[1], m[2], 0xff, 0xfe, m[3], m[4], m[5]}
	return binary.BigEndian.Uint64(eui[:])
}
