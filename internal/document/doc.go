// Package document loads YAML definition files into location-tracked
// fragments.
//
// Every node handed out by this package is a Fragment: the yaml.v3 node plus
// a Location (file, line, column and a breadcrumb such as
// "devices|dev1|lan|ipv4[2]"). All diagnostics are produced from fragments,
// so an error always points at the node that caused it:
//
//	defs.yaml:12:13: [devices|dev1|lan|ipv4] unknown domain 'b.com' in 1st allocation
//
// Tagged scalars (!mac, !ipv4network, ...) are decoded once at load time
// through a TagTable supplied by the caller. The table is an ordinary value;
// nothing is registered globally.
//
// The loaded node tree is never modified, which lets Dump reproduce a
// canonical document byte for byte.
package document
