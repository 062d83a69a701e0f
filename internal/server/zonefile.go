package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"path"
	"strings"
	"time"

	"github.com/miekg/dns"

	"nsct/internal/document"
	"nsct/internal/domain"
	"nsct/internal/scalar"
)

// DefaultZoneTTL is used when ttl is absent
const DefaultZoneTTL = 3600

// SOA timers written into every zone
const (
	soaRefresh = 3600
	soaRetry   = 900
	soaExpire  = 604800
	soaMinTTL  = 300
)

// maxTXTChunk is the longest character-string a TXT record may carry
const maxTXTChunk = 255

// ZoneFile writes one RFC 1035 master file per domain and optionally runs a
// reload command afterwards.
type ZoneFile struct {
	Dir           string
	ReloadCommand string
	TTL           uint32
	Nameserver    string
	Domains       []*domain.Domain

	// Now provides the SOA serial. It defaults to time.Now.
	Now func() time.Time
}

func newZoneFile(f *document.Fragment, env Env) (Service, error) {
	dir, _, err := document.Get(f, document.Path{"zone-dir"}, true, "", document.KindString)
	if err != nil {
		return nil, err
	}
	reload, _, err := document.Get(f, document.Path{"reload-command"}, false, "", document.KindString)
	if err != nil {
		return nil, err
	}
	ttl, ttlFrag, err := document.Get(f, document.Path{"ttl"}, false, DefaultZoneTTL, document.KindInt)
	if err != nil {
		return nil, err
	}
	if ttl < 0 || ttl > math.MaxInt32 {
		return nil, ttlFrag.Errorf("ttl %d is out of valid range 0..%d", ttl, math.MaxInt32)
	}
	domains, err := parseDomains(f, env)
	if err != nil {
		return nil, err
	}
	return &ZoneFile{
		Dir:           dir,
		ReloadCommand: reload,
		TTL:           uint32(ttl),
		Nameserver:    env.Nameserver,
		Domains:       domains,
		Now:           time.Now,
	}, nil
}

// Compute has nothing to reserve.
func (s *ZoneFile) Compute() error {
	return nil
}

// ZonePath returns where the zone of d is written
func (s *ZoneFile) ZonePath(d *domain.Domain) string {
	return path.Join(s.Dir, d.Name()+".zone")
}

// Generate writes every zone and then runs the reload command, if any.
func (s *ZoneFile) Generate(ctx context.Context, t Target) error {
	serial := uint32(s.Now().Unix())
	for _, d := range s.Domains {
		data, err := RenderZone(d, s.Nameserver, s.TTL, serial)
		if err != nil {
			return err
		}
		p := s.ZonePath(d)
		slog.Info("writing zone file", "server", t.String(), "domain", d.Name(), "path", p)
		if err := t.WriteFile(ctx, p, data); err != nil {
			return fmt.Errorf("write %s on %s: %w", p, t, err)
		}
	}

	if s.ReloadCommand == "" {
		return nil
	}
	slog.Info("reloading name server", "server", t.String(), "command", s.ReloadCommand)
	if err := t.Run(ctx, s.ReloadCommand); err != nil {
		return fmt.Errorf("reload name server on %s: %w", t, err)
	}
	return nil
}

// RenderZone renders the record sets of d as a master file with origin
// d's name. The apex carries an SOA and an NS record for nameserver.
func RenderZone(d *domain.Domain, nameserver string, ttl, serial uint32) ([]byte, error) {
	origin := dns.Fqdn(d.Name())
	ns := nameserverName(nameserver, origin)
	header := func(name string, rrtype uint16) dns.RR_Header {
		return dns.RR_Header{Name: name, Rrtype: rrtype, Class: dns.ClassINET, Ttl: ttl}
	}

	rrs := []dns.RR{
		&dns.SOA{
			Hdr:     header(origin, dns.TypeSOA),
			Ns:      ns,
			Mbox:    "hostmaster." + origin,
			Serial:  serial,
			Refresh: soaRefresh,
			Retry:   soaRetry,
			Expire:  soaExpire,
			Minttl:  soaMinTTL,
		},
		&dns.NS{Hdr: header(origin, dns.TypeNS), Ns: ns},
	}

	for _, t := range domain.RecordTypes {
		set := d.Records(t)
		for _, name := range set.Names() {
			owner := ownerName(name, origin)
			for _, v := range set.Values(name) {
				rr, err := resourceRecord(header, owner, origin, v)
				if err != nil {
					return nil, fmt.Errorf("zone %s record %s %s: %w", d.Name(), t, name, err)
				}
				rrs = append(rrs, rr)
			}
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "$ORIGIN %s\n$TTL %d\n", origin, ttl)
	for _, rr := range rrs {
		buf.WriteString(rr.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func resourceRecord(header func(string, uint16) dns.RR_Header, owner, origin string, v fmt.Stringer) (dns.RR, error) {
	switch v := v.(type) {
	case scalar.Address:
		if v.Is4() {
			return &dns.A{Hdr: header(owner, dns.TypeA), A: net.IP(v.AsSlice())}, nil
		}
		return &dns.AAAA{Hdr: header(owner, dns.TypeAAAA), AAAA: net.IP(v.AsSlice())}, nil
	case scalar.MX:
		if v.Priority > math.MaxUint16 {
			return nil, fmt.Errorf("MX priority %d is out of valid range 0..%d", v.Priority, math.MaxUint16)
		}
		return &dns.MX{Hdr: header(owner, dns.TypeMX), Preference: uint16(v.Priority), Mx: qualify(v.Host, origin)}, nil
	case scalar.CNAME:
		return &dns.CNAME{Hdr: header(owner, dns.TypeCNAME), Target: qualify(v.Host, origin)}, nil
	case scalar.TXT:
		return &dns.TXT{Hdr: header(owner, dns.TypeTXT), Txt: chunk(v.Text, maxTXTChunk)}, nil
	}
	return nil, fmt.Errorf("unsupported record value %T", v)
}

// ownerName qualifies a record name: "@" is the origin, names ending in '.'
// are absolute, names already ending in the domain are completed with the
// root label and anything else is relative to origin.
func ownerName(name, origin string) string {
	if name == "@" {
		return origin
	}
	if dns.IsFqdn(name) {
		return name
	}
	if fqdn := dns.Fqdn(name); fqdn == origin || strings.HasSuffix(fqdn, "."+origin) {
		return fqdn
	}
	return name + "." + origin
}

// nameserverName treats a dotted name as absolute and a bare host name as
// a host inside the zone.
func nameserverName(ns, origin string) string {
	if strings.Contains(ns, ".") {
		return dns.Fqdn(ns)
	}
	return ns + "." + origin
}

// qualify makes a target host absolute. Hosts without a trailing dot are
// relative to origin.
func qualify(host, origin string) string {
	if dns.IsFqdn(host) {
		return host
	}
	return host + "." + origin
}

func chunk(s string, n int) []string {
	if len(s) <= n {
		return []string{s}
	}
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}
