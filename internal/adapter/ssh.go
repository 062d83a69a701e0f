package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"nsct/internal/server"
)

// SSHConfig holds connection settings shared by every server session
type SSHConfig struct {
	// ConnectTimeout bounds the TCP dial and SSH handshake
	ConnectTimeout time.Duration
	// CommandTimeout bounds each remote command and file write
	CommandTimeout time.Duration
}

// DefaultSSHConfig returns the defaults used when no config file sets them
func DefaultSSHConfig() SSHConfig {
	return SSHConfig{
		ConnectTimeout: 30 * time.Second,
		CommandTimeout: 2 * time.Minute,
	}
}

// SSHDialer opens SSH sessions to servers. It implements server.Dialer.
type SSHDialer struct {
	connectTimeout time.Duration
	commandTimeout time.Duration
}

// NewSSHDialer creates a dialer, filling zero timeouts with defaults
func NewSSHDialer(config SSHConfig) *SSHDialer {
	def := DefaultSSHConfig()
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = def.ConnectTimeout
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = def.CommandTimeout
	}
	return &SSHDialer{
		connectTimeout: config.ConnectTimeout,
		commandTimeout: config.CommandTimeout,
	}
}

// Dial connects to the server with its identity key and verifies the
// server against the pinned host key.
func (d *SSHDialer) Dial(ctx context.Context, s *server.Server) (server.Target, error) {
	settings := s.SSH()
	config, err := ClientConfig(settings)
	if err != nil {
		return nil, err
	}
	config.Timeout = d.connectTimeout

	addr := settings.Address()
	slog.Debug("connecting", "server", s.Name(), "address", addr, "user", settings.User)

	dialer := &net.Dialer{Timeout: d.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return &SSHSession{
		client:         ssh.NewClient(sshConn, chans, reqs),
		name:           fmt.Sprintf("%s@%s", settings.User, s.Name()),
		commandTimeout: d.commandTimeout,
	}, nil
}

// ClientConfig builds the client config for settings: public key auth with
// the identity file and a fixed host key callback.
func ClientConfig(settings server.SSH) (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(settings.Identity)
	if err != nil {
		return nil, fmt.Errorf("read identity %s: %w", settings.Identity, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse identity %s: %w", settings.Identity, err)
	}
	hostKey, err := ParseHostKey(settings.HostKeyType, settings.HostKey)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:              settings.User,
		Auth:              []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback:   ssh.FixedHostKey(hostKey),
		HostKeyAlgorithms: hostKeyAlgorithms(hostKey.Type()),
	}, nil
}

// hostKeyAlgorithms lists the signature algorithms a pinned key of keyType
// can verify. RSA keys sign with SHA-2 on current servers.
func hostKeyAlgorithms(keyType string) []string {
	if keyType == ssh.KeyAlgoRSA {
		return []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA}
	}
	return []string{keyType}
}

// ParseHostKey decodes a pinned host key and checks it is of keyType
func ParseHostKey(keyType, key string) (ssh.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode host key: %w", err)
	}
	pub, err := ssh.ParsePublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse host key: %w", err)
	}
	if pub.Type() != keyType {
		return nil, fmt.Errorf("host key is of type %s, not %s", pub.Type(), keyType)
	}
	return pub, nil
}

// SSHSession is an open connection to one server. Each command runs in a
// fresh SSH session on the shared client.
type SSHSession struct {
	client         *ssh.Client
	name           string
	commandTimeout time.Duration
}

// String names the session as user@server
func (s *SSHSession) String() string {
	return s.name
}

// Run executes cmd and fails on a non-zero exit status.
func (s *SSHSession) Run(ctx context.Context, cmd string) error {
	slog.Debug("running command", "server", s.name, "command", cmd)
	out, err := s.exec(ctx, cmd, nil)
	if err != nil {
		return fmt.Errorf("command '%s' failed: %w%s", cmd, err, outputSuffix(out))
	}
	return nil
}

// WriteFile replaces the file at path with data.
func (s *SSHSession) WriteFile(ctx context.Context, path string, data []byte) error {
	slog.Debug("writing file", "server", s.name, "path", path, "bytes", len(data))
	out, err := s.exec(ctx, "cat > "+ShellQuote(path), data)
	if err != nil {
		return fmt.Errorf("write %s failed: %w%s", path, err, outputSuffix(out))
	}
	return nil
}

// Close closes the underlying client
func (s *SSHSession) Close() error {
	return s.client.Close()
}

func (s *SSHSession) exec(ctx context.Context, cmd string, stdin []byte) ([]byte, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	}
}

// ShellQuote quotes s for a POSIX shell
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func outputSuffix(out []byte) string {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return ""
	}
	return ": " + trimmed
}
