// Package adapter connects the tool to the systems it manages.
//
// SSHDialer implements server.Dialer over golang.org/x/crypto/ssh. Each
// dial authenticates with the server's identity file and accepts only the
// host key pinned in the definition. Commands and file writes each run in
// their own SSH session on the shared client, bounded by the command
// timeout.
//
// Preflight scans every server's SSH port with nmap before generation so
// that an unreachable server fails the run before any remote change.
package adapter
