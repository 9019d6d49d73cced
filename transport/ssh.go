// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Compile-time interface check.
var _ Dialer = (*SSHDialer)(nil)

// dialStdioCommand is run on the remote host to splice the remote
// daemon socket onto the SSH session's stdio.
const dialStdioCommand = "docker system dial-stdio"

// SSHDialer tunnels daemon connections through an SSH session. The
// first dial establishes the SSH client connection; each subsequent
// dial runs a stdio-forwarding command in a fresh session on that
// shared connection and presents the session's stdin/stdout as a
// net.Conn.
//
// Authentication uses the local SSH agent (SSH_AUTH_SOCK). Host keys
// are verified against the user's known_hosts file.
type SSHDialer struct {
	// Address is the remote host:port.
	Address string

	// User is the SSH user; defaults to the current OS user.
	User string

	// AgentSocket overrides the SSH agent socket path. Empty means
	// the SSH_AUTH_SOCK environment variable.
	AgentSocket string

	// KnownHostsFile overrides the host key database. Empty means
	// ~/.ssh/known_hosts.
	KnownHostsFile string

	// Timeout bounds the TCP dial to the SSH host.
	Timeout time.Duration

	mu     sync.Mutex
	client *ssh.Client
}

// DialContext opens one tunneled connection to the remote daemon. The
// SSH client connection is established lazily on first use and shared
// by subsequent dials; individual tunnels are independent sessions.
func (d *SSHDialer) DialContext(ctx context.Context) (net.Conn, error) {
	client, err := d.sshClient(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, &ConnectError{Address: d.Address, Err: fmt.Errorf("opening ssh session: %w", err)}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, &ConnectError{Address: d.Address, Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, &ConnectError{Address: d.Address, Err: err}
	}
	if err := session.Start(dialStdioCommand); err != nil {
		session.Close()
		return nil, &ConnectError{Address: d.Address, Err: fmt.Errorf("starting %q: %w", dialStdioCommand, err)}
	}

	return &sshTunnelConn{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		address: d.Address,
	}, nil
}

// Close tears down the shared SSH client connection. Tunnels opened
// earlier fail on their next I/O.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// sshClient returns the shared SSH client, establishing it on first
// call. The TCP dial respects ctx; the SSH handshake inherits the TCP
// connection, so closing via ctx during handshake releases the handle.
func (d *SSHDialer) sshClient(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return d.client, nil
	}

	userName := d.User
	if userName == "" {
		current, err := user.Current()
		if err != nil {
			return nil, &AuthError{Address: d.Address, Err: fmt.Errorf("no ssh user configured and current user unknown: %w", err)}
		}
		userName = current.Username
	}

	authMethod, agentConn, err := d.agentAuth()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := d.hostKeys()
	if err != nil {
		if agentConn != nil {
			agentConn.Close()
		}
		return nil, err
	}

	rawConn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", d.Address)
	if err != nil {
		if agentConn != nil {
			agentConn.Close()
		}
		return nil, &ConnectError{Address: d.Address, Err: err}
	}

	// Abort the handshake if ctx is cancelled mid-flight by closing
	// the underlying connection.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			rawConn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, channels, requests, err := ssh.NewClientConn(rawConn, d.Address, &ssh.ClientConfig{
		User:            userName,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.Timeout,
	})
	close(handshakeDone)
	if err != nil {
		rawConn.Close()
		if ctx.Err() != nil {
			return nil, &ConnectError{Address: d.Address, Err: ctx.Err()}
		}
		return nil, &AuthError{Address: d.Address, Err: err}
	}

	d.client = ssh.NewClient(sshConn, channels, requests)
	return d.client, nil
}

// agentAuth builds the agent-backed auth method. The agent connection
// stays open for the SSH client's lifetime (signing happens per
// authentication attempt).
func (d *SSHDialer) agentAuth() (ssh.AuthMethod, net.Conn, error) {
	socketPath := d.AgentSocket
	if socketPath == "" {
		socketPath = os.Getenv("SSH_AUTH_SOCK")
	}
	if socketPath == "" {
		return nil, nil, &AuthError{Address: d.Address, Err: fmt.Errorf("no SSH agent: SSH_AUTH_SOCK is not set")}
	}
	agentConn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, nil, &AuthError{Address: d.Address, Err: fmt.Errorf("connecting to SSH agent: %w", err)}
	}
	return ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers), agentConn, nil
}

// hostKeys builds the known_hosts host key callback.
func (d *SSHDialer) hostKeys() (ssh.HostKeyCallback, error) {
	path := d.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, &AuthError{Address: d.Address, Err: fmt.Errorf("locating known_hosts: %w", err)}
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, &AuthError{Address: d.Address, Err: fmt.Errorf("loading known_hosts: %w", err)}
	}
	return callback, nil
}

// sshTunnelConn presents a remote stdio-forwarding session as a
// net.Conn. Reads come from the remote command's stdout, writes go to
// its stdin.
type sshTunnelConn struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	address string
}

func (c *sshTunnelConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *sshTunnelConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sshTunnelConn) Close() error {
	c.stdin.Close()
	return c.session.Close()
}

func (c *sshTunnelConn) LocalAddr() net.Addr  { return sshAddr{address: "ssh-tunnel"} }
func (c *sshTunnelConn) RemoteAddr() net.Addr { return sshAddr{address: c.address} }

// Deadlines are not supported on SSH session pipes. The HTTP layer
// relies on context cancellation instead.
func (c *sshTunnelConn) SetDeadline(time.Time) error      { return nil }
func (c *sshTunnelConn) SetReadDeadline(time.Time) error  { return nil }
func (c *sshTunnelConn) SetWriteDeadline(time.Time) error { return nil }

type sshAddr struct {
	address string
}

func (a sshAddr) Network() string { return "ssh" }
func (a sshAddr) String() string  { return a.address }
