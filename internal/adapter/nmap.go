package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"nsct/internal/server"
)

// ScanFunc runs an nmap scan of a single host and port
type ScanFunc func(ctx context.Context, host string, port int, ipv6 bool) (*nmap.Run, error)

// Preflight checks that every server's SSH port is open before any remote
// change is made.
type Preflight struct {
	timeout time.Duration
	scan    ScanFunc
}

// PreflightOption is a functional option for configuring Preflight
type PreflightOption func(*Preflight)

// WithScanTimeout bounds each host scan
func WithScanTimeout(d time.Duration) PreflightOption {
	return func(p *Preflight) {
		p.timeout = d
	}
}

// WithScanner replaces the nmap invocation
func WithScanner(scan ScanFunc) PreflightOption {
	return func(p *Preflight) {
		p.scan = scan
	}
}

// NewPreflight creates a preflight check backed by the nmap binary
func NewPreflight(opts ...PreflightOption) *Preflight {
	p := &Preflight{
		timeout: 30 * time.Second,
		scan:    runNmap,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check scans each server in order and stops at the first that is not
// reachable.
func (p *Preflight) Check(ctx context.Context, servers []*server.Server) error {
	for _, s := range servers {
		settings := s.SSH()
		host := settings.Host.String()
		slog.Info("preflight scan", "server", s.Name(), "address", settings.Address())

		scanCtx, cancel := context.WithTimeout(ctx, p.timeout)
		run, err := p.scan(scanCtx, host, settings.Port, settings.Host.Is6())
		cancel()
		if err != nil {
			return fmt.Errorf("preflight %s: %w", s.Name(), err)
		}
		if err := portOpen(run, settings.Port); err != nil {
			return fmt.Errorf("preflight %s: %s: %w", s.Name(), settings.Address(), err)
		}
	}
	return nil
}

// portOpen reports an error unless run shows port open on some host
func portOpen(run *nmap.Run, port int) error {
	if run == nil {
		return fmt.Errorf("nil scan result")
	}
	state := "not scanned"
	for _, host := range run.Hosts {
		for _, p := range host.Ports {
			if int(p.ID) != port || p.Protocol != "tcp" {
				continue
			}
			if p.State.State == "open" {
				return nil
			}
			state = p.State.State
		}
	}
	return fmt.Errorf("ssh port %d is %s", port, state)
}

func runNmap(ctx context.Context, host string, port int, ipv6 bool) (*nmap.Run, error) {
	opts := []nmap.Option{
		nmap.WithTargets(host),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithSkipHostDiscovery(),
	}
	if ipv6 {
		opts = append(opts, nmap.WithIPv6Scanning())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		slog.Warn("nmap warnings", "host", host, "warnings", *warnings)
	}
	return result, nil
}
