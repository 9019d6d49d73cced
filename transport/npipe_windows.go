// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// Compile-time interface check.
var _ Dialer = (*NamedPipeDialer)(nil)

// NamedPipeDialer connects to the daemon's Windows named pipe. This is
// the default local channel on Windows.
type NamedPipeDialer struct {
	// Path is the pipe path (e.g. //./pipe/docker_engine).
	Path string
}

// DialContext opens a connection to the pipe.
func (d *NamedPipeDialer) DialContext(ctx context.Context) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, d.Path)
	if err != nil {
		return nil, &ConnectError{Address: d.Path, Err: err}
	}
	return conn, nil
}

// newNamedPipeDialer constructs the pipe dialer on Windows.
func newNamedPipeDialer(path string) (Dialer, error) {
	return &NamedPipeDialer{Path: path}, nil
}
