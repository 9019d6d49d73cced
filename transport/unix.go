// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// Compile-time interface check.
var _ Dialer = (*UnixDialer)(nil)

// UnixDialer connects to the daemon's Unix domain socket. This is the
// default local channel on non-Windows platforms.
type UnixDialer struct {
	// Path is the socket path (e.g. /var/run/docker.sock).
	Path string

	// Timeout bounds the dial independently of the context. Zero
	// means only the context deadline applies.
	Timeout time.Duration
}

// DialContext opens a connection to the socket.
func (d *UnixDialer) DialContext(ctx context.Context) (net.Conn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "unix", d.Path)
	if err != nil {
		return nil, &ConnectError{Address: d.Path, Err: err}
	}
	return conn, nil
}
