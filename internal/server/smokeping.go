package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"nsct/internal/document"
	"nsct/internal/domain"
	"nsct/internal/scalar"
)

// DockerSmokeping writes a smokeping target tree for a dockerised
// smokeping and restarts its unit.
type DockerSmokeping struct {
	ConfigName string
	Domains    []*domain.Domain
}

func newDockerSmokeping(f *document.Fragment, env Env) (Service, error) {
	name, _, err := document.Get(f, document.Path{"config-name"}, true, "", document.KindString)
	if err != nil {
		return nil, err
	}
	domains, err := parseDomains(f, env)
	if err != nil {
		return nil, err
	}
	return &DockerSmokeping{ConfigName: name, Domains: domains}, nil
}

// Compute has nothing to reserve.
func (s *DockerSmokeping) Compute() error {
	return nil
}

// smokepingTarget joins parts with '.' and maps '.' and '-' to '_'.
func smokepingTarget(parts ...string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(strings.Join(parts, "."))
}

// Render returns the target tree: one section per domain holding IPv4
// device interface allocations, one subsection per interface.
func (s *DockerSmokeping) Render() []byte {
	var buf bytes.Buffer
	buf.WriteString("+ Devices\n\nmenu = Devices\ntitle = Devices\n\n")

	for _, d := range s.Domains {
		var hosts []domain.Allocation
		for _, a := range d.Allocations(scalar.IPv4) {
			if a.Occupant.Interface != nil {
				hosts = append(hosts, a)
			}
		}
		if len(hosts) == 0 {
			continue
		}

		section := smokepingTarget(d.Name())
		paths := make([]string, len(hosts))
		for i, a := range hosts {
			paths[i] = fmt.Sprintf("/Devices/%s/%s", section, smokepingTarget(a.Occupant.Interface.Hostname(), d.Name()))
		}
		fmt.Fprintf(&buf, "++ %s\n\n", section)
		fmt.Fprintf(&buf, "menu = %s\n", d)
		fmt.Fprintf(&buf, "title = Domain %s\n", d)
		fmt.Fprintf(&buf, "host = %s\n\n", strings.Join(paths, " "))

		for _, a := range hosts {
			hostname := a.Occupant.Interface.Hostname()
			fmt.Fprintf(&buf, "+++ %s\n\n", smokepingTarget(hostname, d.Name()))
			fmt.Fprintf(&buf, "menu = %s\n", hostname)
			fmt.Fprintf(&buf, "title = %s.%s\n", hostname, d)
			fmt.Fprintf(&buf, "host = %s\n\n", a.Address)
		}
	}
	return buf.Bytes()
}

// Generate writes the config and restarts the smokeping container.
func (s *DockerSmokeping) Generate(ctx context.Context, t Target) error {
	slog.Info("writing smokeping targets", "server", t.String(), "path", s.ConfigName)
	if err := t.WriteFile(ctx, s.ConfigName, s.Render()); err != nil {
		return fmt.Errorf("write %s on %s: %w", s.ConfigName, t, err)
	}
	slog.Info("restarting smokeping", "server", t.String())
	if err := t.Run(ctx, "sudo systemctl restart docker-smokeping"); err != nil {
		return fmt.Errorf("restart smokeping on %s: %w", t, err)
	}
	return nil
}
