package server

import (
	"fmt"
	"log/slog"
	"sort"

	"nsct/internal/document"
)

// Constructor builds a service from its document mapping
type Constructor func(f *document.Fragment, env Env) (Service, error)

// Registry maps (category, backend type) pairs to service constructors.
type Registry struct {
	constructors map[Category]map[string]Constructor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[Category]map[string]Constructor)}
}

// Register adds a constructor. It panics if the pair is already registered.
func (r *Registry) Register(cat Category, backend string, c Constructor) {
	backends, ok := r.constructors[cat]
	if !ok {
		backends = make(map[string]Constructor)
		r.constructors[cat] = backends
	}
	if _, exists := backends[backend]; exists {
		panic(fmt.Sprintf("service '%s' type '%s' already registered", cat, backend))
	}
	slog.Debug("registering service backend", "service", string(cat), "type", backend)
	backends[backend] = c
}

// Lookup returns the constructor for a pair
func (r *Registry) Lookup(cat Category, backend string) (Constructor, bool) {
	c, ok := r.constructors[cat][backend]
	return c, ok
}

// Backends returns the backend types of a category, sorted
func (r *Registry) Backends(cat Category) []string {
	out := make([]string, 0, len(r.constructors[cat]))
	for name := range r.constructors[cat] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Backends returns a registry holding every built-in backend.
func Backends() *Registry {
	r := NewRegistry()
	r.Register(CategoryIPv4DHCP, "dnsmasq.openwrt", newOpenWrtDHCP)
	r.Register(CategoryDNS, "dnsmasq.openwrt", newOpenWrtHosts)
	r.Register(CategoryDNS, "zonefile", newZoneFile)
	r.Register(CategoryEthers, "dnsmasq.openwrt", newOpenWrtEthers)
	r.Register(CategorySmokeping, "docker", newDockerSmokeping)
	return r
}
