package server_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nsct/internal/document"
	"nsct/internal/domain"
	"nsct/internal/scalar"
	"nsct/internal/server"
)

type fakeTarget struct {
	name   string
	runs   []string
	files  map[string]string
	failOn string
	closed bool
}

func (f *fakeTarget) Run(ctx context.Context, cmd string) error {
	f.runs = append(f.runs, cmd)
	if cmd == f.failOn {
		return errors.New("exit status 1")
	}
	return nil
}

func (f *fakeTarget) WriteFile(ctx context.Context, path string, data []byte) error {
	if path == f.failOn {
		return errors.New("permission denied")
	}
	f.files[path] = string(data)
	return nil
}

func (f *fakeTarget) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTarget) String() string {
	return f.name
}

type fakeDialer struct {
	targets []*fakeTarget
	failOn  string
	err     error
}

func (d *fakeDialer) Dial(ctx context.Context, s *server.Server) (server.Target, error) {
	if d.err != nil {
		return nil, d.err
	}
	t := &fakeTarget{name: s.Name(), files: make(map[string]string), failOn: d.failOn}
	d.targets = append(d.targets, t)
	return t, nil
}

type fixture struct {
	env     server.Env
	devices []*domain.Device
	servers []*server.Server
}

func identityFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(path, []byte("not a real key\n"), 0o600))
	return path
}

func build(t *testing.T, src string) (*fixture, error) {
	t.Helper()
	src = strings.ReplaceAll(src, "%identity%", identityFile(t))
	root, err := document.Load("test.yaml", []byte(src), scalar.Tags())
	require.NoError(t, err)

	nameserver, _, err := document.Get(root, document.Path{"nameserver"}, false, "ns", document.KindString)
	require.NoError(t, err)
	fx := &fixture{env: server.Env{
		Nameserver: nameserver,
		Domains:    domain.NewDomains(),
		MACs:       domain.NewMACIndex(),
	}}

	items, err := root.ItemsAt(document.Path{"domains"}, false)
	require.NoError(t, err)
	for _, item := range items {
		d, err := domain.ParseDomain(item.Key, item.Fragment)
		require.NoError(t, err)
		fx.env.Domains.Add(d)
	}
	items, err = root.ItemsAt(document.Path{"devices"}, false)
	require.NoError(t, err)
	for _, item := range items {
		dev, err := domain.ParseDevice(item.Key, item.Fragment, fx.env.Domains, fx.env.MACs)
		require.NoError(t, err)
		fx.devices = append(fx.devices, dev)
	}

	items, err = root.ItemsAt(document.Path{"servers"}, false)
	require.NoError(t, err)
	for _, item := range items {
		s, err := server.Parse(item.Key, item.Fragment, server.Backends(), fx.env)
		if err != nil {
			return nil, err
		}
		fx.servers = append(fx.servers, s)
	}
	return fx, nil
}

func mustBuild(t *testing.T, src string) *fixture {
	t.Helper()
	fx, err := build(t, src)
	require.NoError(t, err)
	return fx
}

func (fx *fixture) compute(t *testing.T) {
	t.Helper()
	for _, s := range fx.servers {
		require.NoError(t, s.Compute())
	}
	for _, dev := range fx.devices {
		require.NoError(t, dev.Compute())
	}
}

const network = `nameserver: ns
domains:
  a.com:
    ipv4-subnet: !ipv4network 95.172.226.216/29
    ipv6-subnet: !ipv6network 2001:470:1f1d:cc9::/64
devices:
  dev1:
    lan:
      mac: !mac 00:01:02:03:04:05
      ipv4: !allocation a.com/1
      ipv6: !allocation a.com/EUI
    wlan:
      mac: !mac 00:01:02:03:04:06
      ipv4: !allocation a.com/6
  dev2:
    lan:
      ipv4: !allocation a.com/5
`

const router = `servers:
  router:
    ssh:
      host: !ipv4address 10.10.10.1
      user: root
      identity: %identity%
      host-key: ssh-rsa AAAAxxx
`

const allServices = network + router + `    services:
      ipv4-dhcp:
        type: dnsmasq.openwrt
        interface: lan
        domain: a.com
        range: !ipv4range 95.172.226.220-95.172.226.218
      dns:
        type: dnsmasq.openwrt
        domains: [a.com]
      ethers:
        type: dnsmasq.openwrt
      smokeping:
        type: docker
        config-name: /srv/smokeping/targets
        domains: [a.com]
`

func TestParseServer(t *testing.T) {
	fx := mustBuild(t, allServices)
	require.Len(t, fx.servers, 1)

	s := fx.servers[0]
	assert.Equal(t, "router", s.Name())
	assert.Equal(t, []server.Category{
		server.CategoryIPv4DHCP, server.CategoryDNS, server.CategoryEthers, server.CategorySmokeping,
	}, s.Categories())

	ssh := s.SSH()
	assert.Equal(t, "10.10.10.1:22", ssh.Address())
	assert.Equal(t, "root", ssh.User)
	assert.Equal(t, "ssh-rsa", ssh.HostKeyType)
	assert.Equal(t, "AAAAxxx", ssh.HostKey)
	assert.True(t, filepath.IsAbs(ssh.Identity))

	svc, ok := s.Service(server.CategoryIPv4DHCP)
	require.True(t, ok)
	dhcp, ok := svc.(*server.OpenWrtDHCP)
	require.True(t, ok)
	assert.Equal(t, "lan", dhcp.Interface)
	assert.Equal(t, server.DefaultLeaseTime, dhcp.LeaseTime)
	assert.Equal(t, "95.172.226.218-95.172.226.220", dhcp.Range.String())
}

func TestParseServerIPv6Host(t *testing.T) {
	fx := mustBuild(t, `servers:
  router:
    ssh:
      host: !ipv6address fe80::1
      port: 2222
      user: root
      identity: %identity%
      host-key: ssh-ed25519 AAAAC3NzaC1lZDI1NTE5
`)
	assert.Equal(t, "[fe80::1]:2222", fx.servers[0].SSH().Address())
	assert.Empty(t, fx.servers[0].Categories())
}

func TestParseServerErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "host not an address",
			src: `servers:
  router:
    ssh:
      host: router.local
`,
			want: "test.yaml:4:13: [servers|router|ssh|host] value of type str for key host is not of expected types ipv4address or ipv6address",
		},
		{
			name: "missing user",
			src: `servers:
  router:
    ssh:
      host: !ipv4address 10.10.10.1
`,
			want: "test.yaml:4:7: [servers|router|ssh] missing required key 'user'",
		},
		{
			name: "port out of range",
			src: `servers:
  router:
    ssh:
      host: !ipv4address 10.10.10.1
      port: 70000
`,
			want: "test.yaml:5:13: [servers|router|ssh|port] ssh.port 70000 is out of valid range 1..65535",
		},
		{
			name: "malformed host key",
			src: `servers:
  router:
    ssh:
      host: !ipv4address 10.10.10.1
      user: root
      identity: %identity%
      host-key: AAAAxxx
`,
			want: "test.yaml:7:17: [servers|router|ssh|host-key] ssh.host-key 'AAAAxxx' must be '<type> <base64 key>'",
		},
		{
			name: "unknown category",
			src: router + `    services:
      ntp:
        type: chrony
`,
			want: "[servers|router|services|ntp] unsupported service 'ntp'. Supported services: ipv4-dhcp, dns, ethers, smokeping",
		},
		{
			name: "unknown backend",
			src: router + `    services:
      dns:
        type: bind
`,
			want: "test.yaml:9:15: [servers|router|services|dns|type] unsupported service 'dns' type 'bind'. Supported types: dnsmasq.openwrt, zonefile",
		},
		{
			name: "missing type",
			src: router + `    services:
      ethers: {}
`,
			want: "[servers|router|services|ethers] missing required key 'type'",
		},
		{
			name: "dhcp unknown domain",
			src: network + router + `    services:
      ipv4-dhcp:
        type: dnsmasq.openwrt
        interface: lan
        domain: b.com
        range: !ipv4range 95.172.226.218-95.172.226.220
`,
			want: "[servers|router|services|ipv4-dhcp|domain] domain 'b.com' is not a known domain",
		},
		{
			name: "dhcp range outside subnet",
			src: network + router + `    services:
      ipv4-dhcp:
        type: dnsmasq.openwrt
        interface: lan
        domain: a.com
        range: !ipv4range 95.172.226.222-95.172.226.224
`,
			want: "[servers|router|services|ipv4-dhcp|range] range stop not inside domain's ipv4 subnet 95.172.226.216/29",
		},
		{
			name: "dhcp range start outside subnet",
			src: network + router + `    services:
      ipv4-dhcp:
        type: dnsmasq.openwrt
        interface: lan
        domain: a.com
        range: !ipv4range 95.172.226.200-95.172.226.218
`,
			want: "range start not inside domain's ipv4 subnet 95.172.226.216/29",
		},
		{
			name: "dhcp domain without subnet",
			src: `domains:
  b.com: {}
` + router + `    services:
      ipv4-dhcp:
        type: dnsmasq.openwrt
        interface: lan
        domain: b.com
        range: !ipv4range 95.172.226.218-95.172.226.220
`,
			want: "no ipv4 subnet defined in domain b.com",
		},
		{
			name: "dns unknown domain",
			src: network + router + `    services:
      dns:
        type: dnsmasq.openwrt
        domains:
          - a.com
          - c.com
`,
			want: "[servers|router|services|dns|domains[2]] unknown domain 'c.com'",
		},
		{
			name: "smokeping missing config name",
			src: network + router + `    services:
      smokeping:
        type: docker
        domains: [a.com]
`,
			want: "[servers|router|services|smokeping] missing required key 'config-name'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseServerIdentity(t *testing.T) {
	dir := t.TempDir()
	src := strings.ReplaceAll(router, "%identity%", dir)
	_, err := build(t, src)
	require.Error(t, err)
	var schemaErr *document.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Contains(t, err.Error(), "[servers|router|ssh|identity] ssh.identity '"+dir+"' (path "+dir+") is not a file")

	missing := filepath.Join(dir, "missing")
	_, err = build(t, strings.ReplaceAll(router, "%identity%", missing))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a file")
}

func TestParseServerIdentityHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "id_rsa"), []byte("key"), 0o600))

	fx := mustBuild(t, strings.ReplaceAll(router, "%identity%", "~/id_rsa"))
	assert.Equal(t, filepath.Join(home, "id_rsa"), fx.servers[0].SSH().Identity)
}

func TestDHCPGenerate(t *testing.T) {
	fx := mustBuild(t, allServices)
	fx.compute(t)

	d := &fakeDialer{}
	require.NoError(t, fx.servers[0].Generate(context.Background(), []server.Category{server.CategoryIPv4DHCP}, d))
	require.Len(t, d.targets, 1)

	target := d.targets[0]
	assert.True(t, target.closed)
	assert.Equal(t, []string{
		`/bin/ash -c "while uci -q delete dhcp.@host[0]; do :; done"`,
		"uci set dhcp.lan.start=2",
		"uci set dhcp.lan.limit=2",
		"uci set dhcp.lan.leasetime=12h",
		"uci add dhcp host",
		"uci set dhcp.@host[-1].ip=95.172.226.217",
		"uci set dhcp.@host[-1].mac=00:01:02:03:04:05",
		"uci set dhcp.@host[-1].name=dev1",
		"uci add dhcp host",
		"uci set dhcp.@host[-1].ip=95.172.226.222",
		"uci set dhcp.@host[-1].mac=00:01:02:03:04:06",
		"uci set dhcp.@host[-1].name=dev1-wlan",
		"uci commit dhcp",
		"/etc/init.d/dnsmasq restart",
	}, target.runs)
}

func TestDHCPGenerateRevertsOnFailure(t *testing.T) {
	fx := mustBuild(t, allServices)
	fx.compute(t)

	d := &fakeDialer{failOn: "uci commit dhcp"}
	err := fx.servers[0].Generate(context.Background(), []server.Category{server.CategoryIPv4DHCP}, d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate ipv4-dhcp on router")

	runs := d.targets[0].runs
	assert.Equal(t, "uci revert dhcp", runs[len(runs)-1])
	assert.NotContains(t, runs, "/etc/init.d/dnsmasq restart")
	assert.True(t, d.targets[0].closed)
}

func TestDHCPReservesRange(t *testing.T) {
	fx := mustBuild(t, allServices)
	for _, s := range fx.servers {
		require.NoError(t, s.Compute())
	}
	a, _ := fx.env.Domains.Get("a.com")
	o, ok := a.Occupant(scalar.IPv4, 3)
	require.True(t, ok)
	assert.Equal(t, "DHCP allocation range 95.172.226.218-95.172.226.220", o.Reservation)
}

func TestHostsGenerate(t *testing.T) {
	fx := mustBuild(t, allServices)
	fx.compute(t)

	d := &fakeDialer{}
	require.NoError(t, fx.servers[0].Generate(context.Background(), []server.Category{server.CategoryDNS}, d))
	target := d.targets[0]
	assert.Equal(t, "127.0.0.1\tlocalhost\n"+
		"::1\tlocalhost ip6-localhost ip6-loopback\n"+
		"ff02::1\tip6-allnodes\n"+
		"ff02::2\tip6-allrouters\n"+
		"95.172.226.217\tdev1.a.com\n"+
		"95.172.226.222\tdev1-wlan.a.com\n"+
		"95.172.226.221\tdev2.a.com\n"+
		"2001:470:1f1d:cc9:201:2ff:fe03:405\tdev1.a.com\n",
		target.files[server.HostsPath])
	assert.Equal(t, []string{"/etc/init.d/dnsmasq restart"}, target.runs)
}

func TestEthersGenerate(t *testing.T) {
	fx := mustBuild(t, allServices)
	fx.compute(t)

	d := &fakeDialer{}
	require.NoError(t, fx.servers[0].Generate(context.Background(), []server.Category{server.CategoryEthers}, d))
	assert.Equal(t, "00:01:02:03:04:05 dev1\n00:01:02:03:04:06 dev1-wlan\n", d.targets[0].files[server.EthersPath])
}

func TestSmokepingGenerate(t *testing.T) {
	fx := mustBuild(t, allServices)
	fx.compute(t)

	d := &fakeDialer{}
	require.NoError(t, fx.servers[0].Generate(context.Background(), []server.Category{server.CategorySmokeping}, d))
	target := d.targets[0]
	assert.Equal(t, `+ Devices

menu = Devices
title = Devices

++ a_com

menu = a.com
title = Domain a.com
host = /Devices/a_com/dev1_a_com /Devices/a_com/dev2_a_com /Devices/a_com/dev1_wlan_a_com

+++ dev1_a_com

menu = dev1
title = dev1.a.com
host = 95.172.226.217

+++ dev2_a_com

menu = dev2
title = dev2.a.com
host = 95.172.226.221

+++ dev1_wlan_a_com

menu = dev1-wlan
title = dev1-wlan.a.com
host = 95.172.226.222

`, target.files["/srv/smokeping/targets"])
	assert.Equal(t, []string{"sudo systemctl restart docker-smokeping"}, target.runs)
}

func TestGenerateAllOpensOneSessionPerService(t *testing.T) {
	fx := mustBuild(t, allServices)
	fx.compute(t)

	d := &fakeDialer{}
	require.NoError(t, fx.servers[0].Generate(context.Background(), nil, d))
	require.Len(t, d.targets, 4)
	for _, target := range d.targets {
		assert.True(t, target.closed)
	}
	assert.Contains(t, d.targets[0].runs, "uci commit dhcp")
	assert.Contains(t, d.targets[1].files, server.HostsPath)
	assert.Contains(t, d.targets[2].files, server.EthersPath)
	assert.Contains(t, d.targets[3].files, "/srv/smokeping/targets")
}

func TestGenerateDialFailure(t *testing.T) {
	fx := mustBuild(t, allServices)
	fx.compute(t)

	d := &fakeDialer{err: errors.New("connection refused")}
	err := fx.servers[0].Generate(context.Background(), nil, d)
	require.Error(t, err)
	assert.Equal(t, "generate ipv4-dhcp on router: connection refused", err.Error())
}

func TestZoneFile(t *testing.T) {
	fx := mustBuild(t, `nameserver: ns1
domains:
  a.com:
    ipv4-subnet: !ipv4network 95.172.226.216/29
    ipv6-subnet: !ipv6network 2001:470:1f1d:cc9::/64
    records:
      a:
        all-0: !a 95.172.226.216
      aaaa:
        all-0: !aaaa '2001:470:1f1d:cc9::'
      mx:
        '@': !mx 10/mail
      cname:
        a1: !cname a2.a.com.
      txt:
        _keybase: !txt 'keybase-site-verification=blah'
devices:
  dev1:
    lan:
      ipv4: !allocation a.com/1
`+router+`    services:
      dns:
        type: zonefile
        zone-dir: /var/lib/bind
        reload-command: rndc reload
        ttl: 600
        domains: [a.com]
`)
	fx.compute(t)

	svc, ok := fx.servers[0].Service(server.CategoryDNS)
	require.True(t, ok)
	zf := svc.(*server.ZoneFile)
	zf.Now = func() time.Time { return time.Unix(1700000000, 0) }

	d := &fakeDialer{}
	require.NoError(t, fx.servers[0].Generate(context.Background(), nil, d))
	target := d.targets[0]

	assert.Equal(t, "$ORIGIN a.com.\n"+
		"$TTL 600\n"+
		"a.com.\t600\tIN\tSOA\tns1.a.com. hostmaster.a.com. 1700000000 3600 900 604800 300\n"+
		"a.com.\t600\tIN\tNS\tns1.a.com.\n"+
		"a.com.\t600\tIN\tMX\t10 mail.a.com.\n"+
		"a1.a.com.\t600\tIN\tCNAME\ta2.a.com.\n"+
		"_keybase.a.com.\t600\tIN\tTXT\t\"keybase-site-verification=blah\"\n"+
		"all-0.a.com.\t600\tIN\tA\t95.172.226.216\n"+
		"dev1.a.com.\t600\tIN\tA\t95.172.226.217\n"+
		"all-0.a.com.\t600\tIN\tAAAA\t2001:470:1f1d:cc9::\n",
		target.files["/var/lib/bind/a.com.zone"])
	assert.Equal(t, []string{"rndc reload"}, target.runs)
}

func TestRenderZoneNames(t *testing.T) {
	d := domain.NewDomain("a.com", scalar.MustParseNetwork("10.0.0.0/24", scalar.IPv4), scalar.Network{})
	r, err := scalar.ParseAddressRange("10.0.0.2-10.0.0.2", scalar.IPv4)
	require.NoError(t, err)
	require.NoError(t, d.ReserveAddressRange(scalar.IPv4, r))
	d.Records(domain.RecordCNAME).Add("www.b.org.", scalar.CNAME{Host: "a.com."})

	data, err := server.RenderZone(d, "ns.example.net", 60, 1)
	require.NoError(t, err)
	zone := string(data)
	assert.Contains(t, zone, "a.com.\t60\tIN\tNS\tns.example.net.\n")
	assert.Contains(t, zone, "dhcp-2.a.com.\t60\tIN\tA\t10.0.0.2\n")
	assert.Contains(t, zone, "www.b.org.\t60\tIN\tCNAME\ta.com.\n")
}

func TestRegistry(t *testing.T) {
	r := server.Backends()
	assert.Equal(t, []string{"dnsmasq.openwrt", "zonefile"}, r.Backends(server.CategoryDNS))
	assert.Equal(t, []string{"docker"}, r.Backends(server.CategorySmokeping))

	_, ok := r.Lookup(server.CategoryEthers, "docker")
	assert.False(t, ok)

	assert.Panics(t, func() {
		r.Register(server.CategoryDNS, "zonefile", nil)
	})
}

func TestParseCategory(t *testing.T) {
	c, ok := server.ParseCategory("ipv4-dhcp")
	assert.True(t, ok)
	assert.Equal(t, server.CategoryIPv4DHCP, c)

	_, ok = server.ParseCategory("ipv6-dhcp")
	assert.False(t, ok)
}
