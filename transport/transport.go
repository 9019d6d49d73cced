// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport opens byte-stream connections to a container
// daemon over the channel kinds the daemon listens on: Unix socket,
// Windows named pipe, plain TCP, TCP with TLS, and an SSH tunnel.
//
// The channel kind is chosen exactly once, when an Endpoint is
// resolved from explicit configuration or the environment. Each kind
// is a separate Dialer implementation behind one interface; there is
// no re-selection or fallback after construction. HTTPTransport adapts
// a Dialer into an http.RoundTripper so the client package can run the
// daemon's HTTP API over any channel.
package transport

import (
	"context"
	"net"
	"net/http"
)

// Dialer opens one connection to the daemon. Each call produces a new
// connection owned exclusively by the caller; connections are never
// shared between concurrent requests. Implementations must release the
// underlying OS handle on every exit path, including context
// cancellation mid-dial.
type Dialer interface {
	// DialContext opens a connection to the daemon endpoint the
	// dialer was constructed for. The returned connection is live
	// and ready for an HTTP exchange.
	DialContext(ctx context.Context) (net.Conn, error)
}

// HTTPTransport creates an http.RoundTripper that routes every request
// through dialer. The request URL's host is ignored — all connections
// go to the dialer's fixed endpoint. DisableCompression matches daemon
// behavior: bodies that want compression (build context uploads) are
// compressed explicitly by the caller.
func HTTPTransport(dialer Dialer) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx)
		},
		DisableCompression: true,
	}
}

// NewDialer selects and constructs the Dialer for an endpoint. This is
// the single point where the channel kind is chosen.
func NewDialer(endpoint Endpoint) (Dialer, error) {
	switch endpoint.Scheme {
	case SchemeUnix:
		return &UnixDialer{Path: endpoint.Address}, nil
	case SchemeNamedPipe:
		return newNamedPipeDialer(endpoint.Address)
	case SchemeTCP:
		if endpoint.TLS != nil {
			return &TLSDialer{Address: endpoint.Address, Config: endpoint.TLS}, nil
		}
		return &TCPDialer{Address: endpoint.Address}, nil
	case SchemeSSH:
		return &SSHDialer{Address: endpoint.Address, User: endpoint.User}, nil
	default:
		return nil, &AddressError{Address: string(endpoint.Scheme), Reason: "unsupported scheme"}
	}
}
