package adapter

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"nsct/internal/server"
)

func newKeyPair(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return path, sshPub
}

func TestParseHostKey(t *testing.T) {
	_, pub := newKeyPair(t)
	encoded := base64.StdEncoding.EncodeToString(pub.Marshal())

	got, err := ParseHostKey("ssh-ed25519", encoded)
	require.NoError(t, err)
	assert.Equal(t, pub.Marshal(), got.Marshal())

	_, err = ParseHostKey("ssh-rsa", encoded)
	require.Error(t, err)
	assert.Equal(t, "host key is of type ssh-ed25519, not ssh-rsa", err.Error())

	_, err = ParseHostKey("ssh-ed25519", "not base64!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode host key")

	_, err = ParseHostKey("ssh-ed25519", base64.StdEncoding.EncodeToString([]byte("garbage")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse host key")
}

func TestClientConfig(t *testing.T) {
	identity, pub := newKeyPair(t)
	settings := server.SSH{
		Host:        netip.MustParseAddr("10.0.0.1"),
		Port:        22,
		User:        "root",
		Identity:    identity,
		HostKeyType: "ssh-ed25519",
		HostKey:     base64.StdEncoding.EncodeToString(pub.Marshal()),
	}

	config, err := ClientConfig(settings)
	require.NoError(t, err)
	assert.Equal(t, "root", config.User)
	assert.Len(t, config.Auth, 1)
	assert.Equal(t, []string{"ssh-ed25519"}, config.HostKeyAlgorithms)
	assert.NoError(t, config.HostKeyCallback("10.0.0.1:22", nil, pub))

	_, other := newKeyPair(t)
	assert.Error(t, config.HostKeyCallback("10.0.0.1:22", nil, other))
}

func TestHostKeyAlgorithms(t *testing.T) {
	assert.Equal(t, []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA}, hostKeyAlgorithms(ssh.KeyAlgoRSA))
	assert.Equal(t, []string{ssh.KeyAlgoED25519}, hostKeyAlgorithms(ssh.KeyAlgoED25519))
	assert.Equal(t, []string{ssh.KeyAlgoECDSA256}, hostKeyAlgorithms(ssh.KeyAlgoECDSA256))
}

// serveSSH accepts any public key and rejects every channel. It returns
// the listening port.
func serveSSH(t *testing.T, hostKey ssh.Signer) int {
	t.Helper()
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
				if err != nil {
					conn.Close()
					return
				}
				go ssh.DiscardRequests(reqs)
				for ch := range chans {
					ch.Reject(ssh.Prohibited, "no sessions")
				}
				sconn.Close()
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestDialRSAHostKeyWithSHA2Only(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	sha2Only, err := ssh.NewSignerWithAlgorithms(signer.(ssh.AlgorithmSigner),
		[]string{ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSASHA512})
	require.NoError(t, err)
	port := serveSSH(t, sha2Only)

	identity, _ := newKeyPair(t)
	s := server.New("router", server.SSH{
		Host:        netip.MustParseAddr("127.0.0.1"),
		Port:        port,
		User:        "root",
		Identity:    identity,
		HostKeyType: ssh.KeyAlgoRSA,
		HostKey:     base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal()),
	})

	d := NewSSHDialer(SSHConfig{ConnectTimeout: 5 * time.Second})
	target, err := d.Dial(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "root@router", target.String())
	assert.NoError(t, target.Close())
}

func TestClientConfigBadIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(path, []byte("key"), 0o600))

	_, err := ClientConfig(server.SSH{Identity: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse identity "+path)

	_, err = ClientConfig(server.SSH{Identity: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read identity")
}

func TestNewSSHDialerDefaults(t *testing.T) {
	d := NewSSHDialer(SSHConfig{})
	assert.Equal(t, 30*time.Second, d.connectTimeout)
	assert.Equal(t, 2*time.Minute, d.commandTimeout)

	d = NewSSHDialer(SSHConfig{ConnectTimeout: time.Second, CommandTimeout: time.Minute})
	assert.Equal(t, time.Second, d.connectTimeout)
	assert.Equal(t, time.Minute, d.commandTimeout)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/etc/hosts", `'/etc/hosts'`},
		{"/tmp/a b", `'/tmp/a b'`},
		{"it's", `'it'\''s'`},
		{"", `''`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ShellQuote(tt.in))
		})
	}
}

func scanResult(port uint16, state string) *nmap.Run {
	return &nmap.Run{
		Hosts: []nmap.Host{{
			Status: nmap.Status{State: "up"},
			Ports: []nmap.Port{{
				ID:       port,
				Protocol: "tcp",
				State:    nmap.State{State: state},
			}},
		}},
	}
}

func TestPortOpen(t *testing.T) {
	assert.NoError(t, portOpen(scanResult(22, "open"), 22))

	err := portOpen(scanResult(22, "filtered"), 22)
	require.Error(t, err)
	assert.Equal(t, "ssh port 22 is filtered", err.Error())

	err = portOpen(scanResult(22, "open"), 2222)
	require.Error(t, err)
	assert.Equal(t, "ssh port 2222 is not scanned", err.Error())

	assert.Error(t, portOpen(nil, 22))
}

func TestPreflightCheck(t *testing.T) {
	servers := []*server.Server{
		server.New("r1", server.SSH{Host: netip.MustParseAddr("10.0.0.1"), Port: 22}),
		server.New("r2", server.SSH{Host: netip.MustParseAddr("2001:db8::1"), Port: 2222}),
	}

	type call struct {
		host string
		port int
		ipv6 bool
	}
	var calls []call
	states := map[string]string{"10.0.0.1": "open", "2001:db8::1": "open"}
	scan := func(ctx context.Context, host string, port int, ipv6 bool) (*nmap.Run, error) {
		calls = append(calls, call{host, port, ipv6})
		return scanResult(uint16(port), states[host]), nil
	}

	p := NewPreflight(WithScanner(scan), WithScanTimeout(time.Second))
	require.NoError(t, p.Check(context.Background(), servers))
	assert.Equal(t, []call{{"10.0.0.1", 22, false}, {"2001:db8::1", 2222, true}}, calls)

	calls = nil
	states["10.0.0.1"] = "closed"
	err := p.Check(context.Background(), servers)
	require.Error(t, err)
	assert.Equal(t, "preflight r1: 10.0.0.1:22: ssh port 22 is closed", err.Error())
	assert.Len(t, calls, 1)

	failing := NewPreflight(WithScanner(func(context.Context, string, int, bool) (*nmap.Run, error) {
		return nil, errors.New("nmap not found")
	}))
	err = failing.Check(context.Background(), servers)
	require.Error(t, err)
	assert.Equal(t, "preflight r1: nmap not found", err.Error())
}
