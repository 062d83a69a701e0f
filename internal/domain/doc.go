// Package domain defines the addressing model of a network definition.
//
// A Domain is a named scope with optional IPv4 and IPv6 subnets and DNS
// record sets. Each subnet has an allocation table keyed by offset from the
// subnet's first address. Devices own interfaces, and each interface asks
// for addresses in one or more domains through allocation requests.
//
// # Allocation
//
// Requests resolve during compute, IPv4 before IPv6, in document order:
//
//   - Offset claims the slot at a fixed offset exclusively.
//   - EUI derives the IPv6 offset from the interface MAC (modified EUI-64)
//     and claims it exclusively.
//   - Alias reads the address at an offset without checking or claiming
//     the slot, so it may share an address with another interface.
//
// DHCP services reserve their dynamic range before any device allocates,
// and receive a static lease for every Offset allocation of an interface
// with a MAC.
//
// Allocation failures are document.AllocationError values located at the
// offending request.
package domain
