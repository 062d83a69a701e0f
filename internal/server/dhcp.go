package server

import (
	"context"
	"fmt"
	"log/slog"

	"nsct/internal/document"
	"nsct/internal/domain"
	"nsct/internal/scalar"
)

// DefaultLeaseTime is used when leasetime is absent
const DefaultLeaseTime = "12h"

// DHCP is an IPv4 DHCP service bound to one domain. It reserves its
// dynamic range in the domain and collects static leases as the domain's
// allocations are resolved.
type DHCP struct {
	Interface string
	Range     scalar.AddressRange
	LeaseTime string
	Domain    *domain.Domain

	leases []domain.StaticLease
	byMAC  map[scalar.MAC]int
}

// NewDHCP creates the service and registers it on d.
func NewDHCP(iface string, r scalar.AddressRange, leaseTime string, d *domain.Domain) *DHCP {
	s := &DHCP{
		Interface: iface,
		Range:     r,
		LeaseTime: leaseTime,
		Domain:    d,
		byMAC:     make(map[scalar.MAC]int),
	}
	d.AddDHCPService(scalar.IPv4, s)
	return s
}

// AddStaticLease records a lease. A later lease for the same MAC replaces
// the earlier one in place.
func (s *DHCP) AddStaticLease(lease domain.StaticLease) {
	if i, ok := s.byMAC[lease.MAC]; ok {
		s.leases[i] = lease
		return
	}
	s.byMAC[lease.MAC] = len(s.leases)
	s.leases = append(s.leases, lease)
}

// Leases returns the static leases in registration order
func (s *DHCP) Leases() []domain.StaticLease {
	return s.leases
}

// Compute reserves the dynamic range in the domain.
func (s *DHCP) Compute() error {
	return s.Domain.ReserveAddressRange(scalar.IPv4, s.Range)
}

func parseDHCP(f *document.Fragment, env Env) (*DHCP, error) {
	iface, _, err := document.Get(f, document.Path{"interface"}, true, "", document.KindString)
	if err != nil {
		return nil, err
	}
	leaseTime, _, err := document.Get(f, document.Path{"leasetime"}, false, DefaultLeaseTime, document.KindString)
	if err != nil {
		return nil, err
	}
	name, domainFrag, err := document.Get(f, document.Path{"domain"}, true, "", document.KindString)
	if err != nil {
		return nil, err
	}
	d, ok := env.Domains.Get(name)
	if !ok {
		return nil, domainFrag.AllocationErrorf("domain '%s' is not a known domain", name)
	}

	r, rangeFrag, err := document.Get(f, document.Path{"range"}, true, scalar.AddressRange{}, scalar.KindIPv4Range)
	if err != nil {
		return nil, err
	}
	subnet, ok := d.Subnet(scalar.IPv4)
	if !ok {
		return nil, rangeFrag.AllocationErrorf("no ipv4 subnet defined in domain %s", d)
	}
	if !subnet.Contains(r.Start()) {
		return nil, rangeFrag.AllocationErrorf("range start not inside domain's ipv4 subnet %s", subnet)
	}
	if !subnet.Contains(r.Stop()) {
		return nil, rangeFrag.AllocationErrorf("range stop not inside domain's ipv4 subnet %s", subnet)
	}

	return NewDHCP(iface, r, leaseTime, d), nil
}

// OpenWrtDHCP drives the dnsmasq DHCP server of an OpenWrt host through uci.
type OpenWrtDHCP struct {
	*DHCP
}

func newOpenWrtDHCP(f *document.Fragment, env Env) (Service, error) {
	s, err := parseDHCP(f, env)
	if err != nil {
		return nil, err
	}
	return &OpenWrtDHCP{DHCP: s}, nil
}

// Commands returns the uci commands that replace the DHCP configuration.
func (s *OpenWrtDHCP) Commands() []string {
	subnet, _ := s.Domain.Subnet(scalar.IPv4)
	start, _ := subnet.Offset(s.Range.Start())
	stop, _ := subnet.Offset(s.Range.Stop())

	cmds := []string{
		`/bin/ash -c "while uci -q delete dhcp.@host[0]; do :; done"`,
		fmt.Sprintf("uci set dhcp.%s.start=%d", s.Interface, start),
		fmt.Sprintf("uci set dhcp.%s.limit=%d", s.Interface, stop-start),
		fmt.Sprintf("uci set dhcp.%s.leasetime=%s", s.Interface, s.LeaseTime),
	}
	for _, l := range s.leases {
		cmds = append(cmds,
			"uci add dhcp host",
			fmt.Sprintf("uci set dhcp.@host[-1].ip=%s", l.Address),
			fmt.Sprintf("uci set dhcp.@host[-1].mac=%s", l.MAC),
			fmt.Sprintf("uci set dhcp.@host[-1].name=%s", l.Hostname),
		)
	}
	return append(cmds, "uci commit dhcp")
}

// Generate applies Commands. On failure the uncommitted changes are
// reverted; on success dnsmasq is restarted.
func (s *OpenWrtDHCP) Generate(ctx context.Context, t Target) error {
	slog.Info("configuring IPv4 DHCP service",
		"server", t.String(), "interface", s.Interface, "leases", len(s.leases))

	for _, cmd := range s.Commands() {
		if err := t.Run(ctx, cmd); err != nil {
			if rerr := t.Run(ctx, "uci revert dhcp"); rerr != nil {
				slog.Warn("failed to revert DHCP configuration", "server", t.String(), "error", rerr)
			}
			return fmt.Errorf("configure IPv4 DHCP on %s: %w", t, err)
		}
	}
	return restartDnsmasq(ctx, t)
}

func restartDnsmasq(ctx context.Context, t Target) error {
	slog.Info("restarting dnsmasq", "server", t.String())
	if err := t.Run(ctx, "/etc/init.d/dnsmasq restart"); err != nil {
		return fmt.Errorf("restart dnsmasq on %s: %w", t, err)
	}
	return nil
}
