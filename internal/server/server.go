package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"nsct/internal/document"
	"nsct/internal/domain"
	"nsct/internal/scalar"
)

// DefaultSSHPort is used when ssh.port is absent
const DefaultSSHPort = 22

// SSH holds the connection settings of a server. HostKey is the base64
// public key as written in the definition; it is decoded at dial time.
type SSH struct {
	Host        netip.Addr
	Port        int
	User        string
	Identity    string
	HostKeyType string
	HostKey     string
}

// Address returns host:port suitable for dialing
func (s SSH) Address() string {
	return net.JoinHostPort(s.Host.String(), strconv.Itoa(s.Port))
}

// Server is a remote host offering network services
type Server struct {
	name     string
	ssh      SSH
	services map[Category]Service
}

// New creates a server with no services
func New(name string, ssh SSH) *Server {
	return &Server{name: name, ssh: ssh, services: make(map[Category]Service)}
}

// Name returns the server name
func (s *Server) Name() string {
	return s.name
}

func (s *Server) String() string {
	return s.name
}

// SSH returns the connection settings
func (s *Server) SSH() SSH {
	return s.ssh
}

// Service returns the service configured for a category
func (s *Server) Service(cat Category) (Service, bool) {
	svc, ok := s.services[cat]
	return svc, ok
}

// SetService installs svc for cat, replacing any previous one.
func (s *Server) SetService(cat Category, svc Service) {
	s.services[cat] = svc
}

// Categories returns the configured categories in generation order
func (s *Server) Categories() []Category {
	var out []Category
	for _, cat := range Categories {
		if _, ok := s.services[cat]; ok {
			out = append(out, cat)
		}
	}
	return out
}

// Compute runs every service's compute hook in category order.
func (s *Server) Compute() error {
	for _, cat := range s.Categories() {
		if err := s.services[cat].Compute(); err != nil {
			return fmt.Errorf("compute %s on %s: %w", cat, s.name, err)
		}
	}
	return nil
}

// Generate delivers the selected categories to the server, one session
// per service. An empty selection means every category.
func (s *Server) Generate(ctx context.Context, only []Category, dialer Dialer) error {
	for _, cat := range s.Categories() {
		if !Selected(only, cat) {
			continue
		}
		if err := s.GenerateCategory(ctx, cat, dialer); err != nil {
			return err
		}
	}
	return nil
}

// GenerateCategory delivers the service for cat, if the server has one.
func (s *Server) GenerateCategory(ctx context.Context, cat Category, dialer Dialer) error {
	if _, ok := s.services[cat]; !ok {
		return nil
	}
	if err := s.generate(ctx, cat, dialer); err != nil {
		return fmt.Errorf("generate %s on %s: %w", cat, s.name, err)
	}
	return nil
}

func (s *Server) generate(ctx context.Context, cat Category, dialer Dialer) (err error) {
	slog.Info("generating service", "server", s.name, "service", string(cat))

	t, err := dialer.Dial(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return s.services[cat].Generate(ctx, t)
}

// Selected reports whether cat is in only. An empty selection holds every
// category.
func Selected(only []Category, cat Category) bool {
	if len(only) == 0 {
		return true
	}
	for _, c := range only {
		if c == cat {
			return true
		}
	}
	return false
}

// Parse builds a server from its document mapping. Services are built
// through reg; unknown categories and backend types fail here.
func Parse(name string, f *document.Fragment, reg *Registry, env Env) (*Server, error) {
	slog.Debug("parsing server", "server", name, "at", f.String())

	ssh, err := parseSSH(f)
	if err != nil {
		return nil, err
	}
	s := New(name, ssh)

	items, err := f.ItemsAt(document.Path{"services"}, false)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		cat, ok := ParseCategory(item.Key)
		if !ok {
			names := make([]string, len(Categories))
			for i, c := range Categories {
				names[i] = string(c)
			}
			return nil, item.Fragment.Errorf("unsupported service '%s'. Supported services: %s",
				item.Key, strings.Join(names, ", "))
		}

		backend, typeFrag, err := document.Get(item.Fragment, document.Path{"type"}, true, "", document.KindString)
		if err != nil {
			return nil, err
		}
		construct, ok := reg.Lookup(cat, backend)
		if !ok {
			return nil, typeFrag.Errorf("unsupported service '%s' type '%s'. Supported types: %s",
				cat, backend, strings.Join(reg.Backends(cat), ", "))
		}
		svc, err := construct(item.Fragment, env)
		if err != nil {
			return nil, err
		}
		s.services[cat] = svc
	}
	return s, nil
}

func parseSSH(f *document.Fragment) (SSH, error) {
	host, _, err := document.Get(f, document.Path{"ssh", "host"}, true, scalar.Address{},
		scalar.KindIPv4Address, scalar.KindIPv6Address)
	if err != nil {
		return SSH{}, err
	}
	port, portFrag, err := document.Get(f, document.Path{"ssh", "port"}, false, DefaultSSHPort, document.KindInt)
	if err != nil {
		return SSH{}, err
	}
	if port < 1 || port > 65535 {
		return SSH{}, portFrag.Errorf("ssh.port %d is out of valid range 1..65535", port)
	}
	user, _, err := document.Get(f, document.Path{"ssh", "user"}, true, "", document.KindString)
	if err != nil {
		return SSH{}, err
	}
	identity, identityFrag, err := document.Get(f, document.Path{"ssh", "identity"}, true, "", document.KindString)
	if err != nil {
		return SSH{}, err
	}
	if identity, err = resolveIdentity(identityFrag, identity); err != nil {
		return SSH{}, err
	}
	hostKey, hostKeyFrag, err := document.Get(f, document.Path{"ssh", "host-key"}, true, "", document.KindString)
	if err != nil {
		return SSH{}, err
	}
	keyType, key, ok := strings.Cut(strings.TrimSpace(hostKey), " ")
	if !ok || keyType == "" || strings.TrimSpace(key) == "" {
		return SSH{}, hostKeyFrag.Errorf("ssh.host-key '%s' must be '<type> <base64 key>'", hostKey)
	}

	return SSH{
		Host:        host.Addr,
		Port:        port,
		User:        user,
		Identity:    identity,
		HostKeyType: keyType,
		HostKey:     strings.TrimSpace(key),
	}, nil
}

// resolveIdentity expands a leading ~, makes the path absolute and checks
// it names a readable regular file.
func resolveIdentity(f *document.Fragment, identity string) (string, error) {
	path := identity
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", f.Errorf("ssh.identity '%s' cannot be expanded: %v", identity, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", f.Errorf("ssh.identity '%s' cannot be resolved: %v", identity, err)
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", f.Errorf("ssh.identity '%s' (path %s) is not a file", identity, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", f.Errorf("ssh.identity '%s' (path: %s) cannot be opened for reading: %v", identity, path, err)
	}
	file.Close()
	return path, nil
}

// parseDomains reads the required domains list of a service.
func parseDomains(f *document.Fragment, env Env) ([]*domain.Domain, error) {
	list, err := f.Lookup(document.Path{"domains"}, true, document.KindSequence)
	if err != nil {
		return nil, err
	}
	elements, err := list.Elements()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Domain, 0, len(elements))
	for _, e := range elements {
		name, err := document.As[string](e.Fragment, document.KindString)
		if err != nil {
			return nil, err
		}
		d, ok := env.Domains.Get(name)
		if !ok {
			return nil, e.Fragment.AllocationErrorf("unknown domain '%s'", name)
		}
		out = append(out, d)
	}
	return out, nil
}
