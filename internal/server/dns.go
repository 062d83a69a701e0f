package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"nsct/internal/document"
	"nsct/internal/domain"
	"nsct/internal/scalar"
)

// HostsPath is where OpenWrt dnsmasq reads static host names from
const HostsPath = "/etc/hosts"

var hostsPreamble = []string{
	"127.0.0.1\tlocalhost",
	"::1\tlocalhost ip6-localhost ip6-loopback",
	"ff02::1\tip6-allnodes",
	"ff02::2\tip6-allrouters",
}

// OpenWrtHosts publishes interface allocations of its domains through the
// hosts file of an OpenWrt dnsmasq.
type OpenWrtHosts struct {
	Domains []*domain.Domain
}

func newOpenWrtHosts(f *document.Fragment, env Env) (Service, error) {
	domains, err := parseDomains(f, env)
	if err != nil {
		return nil, err
	}
	return &OpenWrtHosts{Domains: domains}, nil
}

// Compute has nothing to reserve.
func (s *OpenWrtHosts) Compute() error {
	return nil
}

// Render returns the hosts file: the loopback preamble followed by one
// line per device interface allocation in the order the addresses were
// allocated, IPv4 before IPv6.
func (s *OpenWrtHosts) Render() []byte {
	lines := append([]string(nil), hostsPreamble...)
	for _, d := range s.Domains {
		for _, f := range scalar.Families {
			for _, a := range d.ClaimOrder(f) {
				if a.Occupant.Interface == nil {
					continue
				}
				lines = append(lines, fmt.Sprintf("%s\t%s.%s", a.Address, a.Occupant.Interface.Hostname(), d))
			}
		}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

// Generate writes the hosts file and restarts dnsmasq.
func (s *OpenWrtHosts) Generate(ctx context.Context, t Target) error {
	data := s.Render()
	slog.Info("writing hosts file", "server", t.String(), "path", HostsPath, "bytes", len(data))
	if err := t.WriteFile(ctx, HostsPath, data); err != nil {
		return fmt.Errorf("write %s on %s: %w", HostsPath, t, err)
	}
	return restartDnsmasq(ctx, t)
}
