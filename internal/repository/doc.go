// Package repository defines the inventory store for computed definitions.
//
// Each successful compute can be recorded as a Snapshot: the allocations,
// DNS records and DHCP static leases of every domain at that point. The
// store keeps one run per recording, so the previous run of a definition
// can be compared with the current one to report moved addresses.
//
// # SQLite Implementation
//
// The sqlite subpackage stores allocations as relational rows for ad hoc
// queries and the full snapshot as a CBOR payload.
package repository
