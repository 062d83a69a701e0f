package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"nsct/internal/document"
	"nsct/internal/domain"
)

// EthersPath is where OpenWrt dnsmasq reads MAC to host bindings from
const EthersPath = "/etc/ethers"

// OpenWrtEthers publishes every MAC of the definition through /etc/ethers.
type OpenWrtEthers struct {
	MACs *domain.MACIndex
}

func newOpenWrtEthers(f *document.Fragment, env Env) (Service, error) {
	return &OpenWrtEthers{MACs: env.MACs}, nil
}

// Compute has nothing to reserve.
func (s *OpenWrtEthers) Compute() error {
	return nil
}

// Render returns one "<mac> <hostname>" line per MAC in document order.
func (s *OpenWrtEthers) Render() []byte {
	var buf bytes.Buffer
	for _, e := range s.MACs.Entries() {
		fmt.Fprintf(&buf, "%s %s\n", e.MAC, e.Interface.Hostname())
	}
	return buf.Bytes()
}

// Generate writes the ethers file and restarts dnsmasq.
func (s *OpenWrtEthers) Generate(ctx context.Context, t Target) error {
	slog.Info("writing ethers file", "server", t.String(), "path", EthersPath, "entries", s.MACs.Len())
	if err := t.WriteFile(ctx, EthersPath, s.Render()); err != nil {
		return fmt.Errorf("write %s on %s: %w", EthersPath, t, err)
	}
	return restartDnsmasq(ctx, t)
}
