// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// Compile-time interface check.
var _ Dialer = (*TCPDialer)(nil)

// TCPDialer connects to a daemon listening on unencrypted TCP. Meant
// for development and trusted networks only; production remote access
// goes through TLSDialer or SSHDialer.
type TCPDialer struct {
	// Address is the daemon's host:port.
	Address string

	// Timeout bounds the dial independently of the context. Zero
	// means only the context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the daemon.
func (d *TCPDialer) DialContext(ctx context.Context) (net.Conn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, &ConnectError{Address: d.Address, Err: err}
	}
	return conn, nil
}
