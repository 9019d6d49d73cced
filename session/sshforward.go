// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/stevedore-project/stevedore/lib/netutil"
)

// MethodSSHAgent is the service method name for SSH-agent forwarding.
const MethodSSHAgent = "ssh-agent"

// SSHAgentProvider relays bytes between the local SSH agent socket and
// a daemon-requested stream, bidirectionally, until either side
// closes. Each invocation opens its own agent connection and its own
// bridge; concurrent forwards on one session never share a byte path.
type SSHAgentProvider struct {
	// SocketPath overrides the agent socket. Empty means the
	// SSH_AUTH_SOCK environment variable.
	SocketPath string
}

// Compile-time interface check.
var _ Handler = (*SSHAgentProvider)(nil)

// Serve bridges the invocation stream with the agent socket.
func (p *SSHAgentProvider) Serve(ctx context.Context, stream *Stream) error {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = os.Getenv("SSH_AUTH_SOCK")
	}
	if socketPath == "" {
		return fmt.Errorf("session: no SSH agent: SSH_AUTH_SOCK is not set")
	}

	agentConn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("session: connecting to SSH agent: %w", err)
	}

	// Release the agent socket when the invocation is cancelled so
	// the bridge's blocked copy unblocks.
	bridgeDone := make(chan struct{})
	defer close(bridgeDone)
	go func() {
		select {
		case <-ctx.Done():
			agentConn.Close()
		case <-bridgeDone:
		}
	}()

	return netutil.Bridge(agentConn, &streamConn{ctx: ctx, stream: stream})
}

// streamConn adapts an invocation Stream to io.ReadWriteCloser so the
// standard bridge can relay it against a socket.
type streamConn struct {
	ctx    context.Context
	stream *Stream
	buffer []byte
}

func (c *streamConn) Read(p []byte) (int, error) {
	if len(c.buffer) == 0 {
		data, err := c.stream.Recv(c.ctx)
		if err != nil {
			return 0, err
		}
		c.buffer = data
	}
	n := copy(p, c.buffer)
	c.buffer = c.buffer[n:]
	return n, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	// The bridge reuses p across writes; Send must own its slice.
	chunk := make([]byte, len(p))
	copy(chunk, p)
	if err := c.stream.Send(chunk); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *streamConn) Close() error { return nil }
