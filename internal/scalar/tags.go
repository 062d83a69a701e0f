package scalar

import "nsct/internal/document"

// Kinds of the tagged scalars understood by definition documents.
const (
	KindIPv4Network document.Kind = "ipv4network"
	KindIPv6Network document.Kind = "ipv6network"
	KindIPv4Address document.Kind = "ipv4address"
	KindIPv6Address document.Kind = "ipv6address"
	KindA           document.Kind = "a"
	KindAAAA        document.Kind = "aaaa"
	KindMAC         document.Kind = "mac"
	KindMX          document.Kind = "mx"
	KindCNAME       document.Kind = "cname"
	KindTXT         document.Kind = "txt"
	KindIPv4Range   document.Kind = "ipv4range"
	KindAllocation  document.Kind = "allocation"
)

// Tags builds the tag table for definition documents.
func Tags() document.TagTable {
	t := make(document.TagTable)

	network := func(fam Family) func(string) (any, error) {
		return func(s string) (any, error) { return ParseNetwork(s, fam) }
	}
	address := func(fam Family) func(string) (any, error) {
		return func(s string) (any, error) { return ParseAddress(s, fam) }
	}

	t.Add("!ipv4network", document.TagCodec{Kind: KindIPv4Network, Description: "an IPv4 network", Decode: network(IPv4)})
	t.Add("!ipv6network", document.TagCodec{Kind: KindIPv6Network, Description: "an IPv6 network", Decode: network(IPv6)})
	t.Add("!ipv4address", document.TagCodec{Kind: KindIPv4Address, Description: "an IPv4 address", Decode: address(IPv4)})
	t.Add("!ipv6address", document.TagCodec{Kind: KindIPv6Address, Description: "an IPv6 address", Decode: address(IPv6)})
	t.Add("!a", document.TagCodec{Kind: KindA, Description: "an IPv4 address", Decode: address(IPv4)})
	t.Add("!aaaa", document.TagCodec{Kind: KindAAAA, Description: "an IPv6 address", Decode: address(IPv6)})
	t.Add("!mac", document.TagCodec{Kind: KindMAC, Description: "a MAC address", Decode: func(s string) (any, error) {
		return ParseMAC(s)
	}})
	t.Add("!mx", document.TagCodec{Kind: KindMX, Description: "a MX", Decode: func(s string) (any, error) {
		return ParseMX(s)
	}})
	t.Add("!cname", document.TagCodec{Kind: KindCNAME, Description: "a CNAME", Decode: func(s string) (any, error) {
		return ParseCNAME(s)
	}})
	t.Add("!txt", document.TagCodec{Kind: KindTXT, Description: "a TXT", Decode: func(s string) (any, error) {
		return TXT{Text: s}, nil
	}})
	t.Add("!ipv4range", document.TagCodec{Kind: KindIPv4Range, Description: "an IPv4 address range", Decode: func(s string) (any, error) {
		return ParseAddressRange(s, IPv4)
	}})
	t.Add("!allocation", document.TagCodec{Kind: KindAllocation, Description: "an allocation", Decode: func(s string) (any, error) {
		return ParseAllocation(s)
	}})

	return t
}
