package server

import (
	"context"

	"nsct/internal/domain"
)

// Category groups services by the network function they configure
type Category string

const (
	CategoryIPv4DHCP  Category = "ipv4-dhcp"
	CategoryDNS       Category = "dns"
	CategoryEthers    Category = "ethers"
	CategorySmokeping Category = "smokeping"
)

// Categories lists every category in generation order
var Categories = []Category{CategoryIPv4DHCP, CategoryDNS, CategoryEthers, CategorySmokeping}

// ParseCategory validates a category name
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Service is a configured network service of a server.
type Service interface {
	// Compute runs before any device allocation is resolved.
	Compute() error
	// Generate renders the service configuration and delivers it to t.
	Generate(ctx context.Context, t Target) error
}

// Target is a remote host that accepts commands and files. Implementations
// own one session and release it on Close.
type Target interface {
	Run(ctx context.Context, cmd string) error
	WriteFile(ctx context.Context, path string, data []byte) error
	Close() error
	String() string
}

// Dialer opens a Target for a server
type Dialer interface {
	Dial(ctx context.Context, s *Server) (Target, error)
}

// Env is the parsed state service constructors may reference
type Env struct {
	Nameserver string
	Domains    *domain.Domains
	MACs       *domain.MACIndex
}
