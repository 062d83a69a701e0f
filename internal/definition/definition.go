// Package definition is the aggregate root of a network definition: it
// parses domains, devices and servers from a document, resolves every
// allocation exactly once and hands the result to service generation.
package definition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"nsct/internal/document"
	"nsct/internal/domain"
	"nsct/internal/scalar"
	"nsct/internal/server"
)

// ErrComputed is returned by any call to Compute after the first
var ErrComputed = errors.New("definition already computed")

// ErrNotComputed is returned by Generate before Compute has succeeded
var ErrNotComputed = errors.New("definition not computed")

// Definition holds the parsed network
type Definition struct {
	root       *document.Fragment
	nameserver string
	domains    *domain.Domains
	devices    []*domain.Device
	servers    []*server.Server
	macs       *domain.MACIndex
	attempted  bool
	computed   bool
}

// Load reads the file at path and parses it with the built-in tags and
// service backends.
func Load(path string) (*Definition, error) {
	root, err := document.LoadFile(path, scalar.Tags())
	if err != nil {
		return nil, err
	}
	return Parse(root, server.Backends())
}

// Parse builds a definition from a loaded document. Domains are parsed
// before devices and devices before servers, since both reference domains.
func Parse(root *document.Fragment, services *server.Registry) (*Definition, error) {
	slog.Info("starting parse", "file", root.Location().File)

	if root.Kind() != document.KindMapping {
		return nil, root.Errorf("expecting a mapping at top level of definition")
	}
	nameserver, _, err := document.Get(root, document.Path{"nameserver"}, true, "", document.KindString)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		root:       root,
		nameserver: nameserver,
		domains:    domain.NewDomains(),
		macs:       domain.NewMACIndex(),
	}

	items, err := root.ItemsAt(document.Path{"domains"}, false)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		d, err := domain.ParseDomain(item.Key, item.Fragment)
		if err != nil {
			return nil, err
		}
		def.domains.Add(d)
	}

	items, err = root.ItemsAt(document.Path{"devices"}, false)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		dev, err := domain.ParseDevice(item.Key, item.Fragment, def.domains, def.macs)
		if err != nil {
			return nil, err
		}
		def.devices = append(def.devices, dev)
	}

	env := server.Env{Nameserver: nameserver, Domains: def.domains, MACs: def.macs}
	items, err = root.ItemsAt(document.Path{"servers"}, false)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		s, err := server.Parse(item.Key, item.Fragment, services, env)
		if err != nil {
			return nil, err
		}
		def.servers = append(def.servers, s)
	}

	slog.Info("completed parse", "file", root.Location().File,
		"domains", def.domains.Len(), "devices", len(def.devices), "servers", len(def.servers))
	return def, nil
}

// Compute resolves the definition: servers first so DHCP ranges are
// reserved, then devices so their allocations see the reservations, then
// domains. It may run only once, whether or not it succeeds.
func (d *Definition) Compute() error {
	if d.attempted {
		return ErrComputed
	}
	d.attempted = true
	slog.Info("computing final definition state")

	for _, s := range d.servers {
		if err := s.Compute(); err != nil {
			return err
		}
	}
	for _, dev := range d.devices {
		if err := dev.Compute(); err != nil {
			return err
		}
	}
	for _, dom := range d.domains.All() {
		if err := dom.Compute(); err != nil {
			return err
		}
	}

	d.computed = true
	return nil
}

// Generate delivers the selected service categories category by category,
// visiting the servers of each in document order. An empty selection means
// every category.
func (d *Definition) Generate(ctx context.Context, only []server.Category, dialer server.Dialer) error {
	if !d.computed {
		return ErrNotComputed
	}
	slog.Info("generating", "services", fmt.Sprint(only))

	for _, cat := range server.Categories {
		if !server.Selected(only, cat) {
			continue
		}
		for _, s := range d.servers {
			if err := s.GenerateCategory(ctx, cat, dialer); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dump writes the validated source document in canonical form.
func (d *Definition) Dump(w io.Writer) error {
	return d.root.Dump(w)
}

// Source is the file the definition was read from
func (d *Definition) Source() string {
	return d.root.Location().File
}

// Nameserver returns the nameserver name
func (d *Definition) Nameserver() string {
	return d.nameserver
}

// Domains returns the domains in document order
func (d *Definition) Domains() []*domain.Domain {
	return d.domains.All()
}

// Domain looks up a domain by name
func (d *Definition) Domain(name string) (*domain.Domain, bool) {
	return d.domains.Get(name)
}

// Devices returns the devices in document order
func (d *Definition) Devices() []*domain.Device {
	return d.devices
}

// Device looks up a device by name
func (d *Definition) Device(name string) (*domain.Device, bool) {
	for _, dev := range d.devices {
		if dev.Name() == name {
			return dev, true
		}
	}
	return nil, false
}

// Servers returns the servers in document order
func (d *Definition) Servers() []*server.Server {
	return d.servers
}

// MACs returns the global MAC index
func (d *Definition) MACs() *domain.MACIndex {
	return d.macs
}

// Computed reports whether Compute has succeeded
func (d *Definition) Computed() bool {
	return d.computed
}
