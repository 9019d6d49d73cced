// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AddressError reports an endpoint address that could not be parsed or
// names an unsupported scheme. Detected before any connection attempt.
type AddressError struct {
	Address string
	Reason  string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("transport: invalid address %q: %s", e.Address, e.Reason)
}

// ConnectError reports a failed connection attempt: refused, timed
// out, or otherwise unreachable. Wraps the underlying dial error.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connecting to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Timeout reports whether the connection attempt failed by deadline
// rather than refusal.
func (e *ConnectError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// TLSError reports a failed TLS handshake or unloadable TLS material.
type TLSError struct {
	Address string
	Err     error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("transport: TLS with %s: %v", e.Address, e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }

// AuthError reports failed authentication on an SSH tunnel.
type AuthError struct {
	Address string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("transport: authenticating to %s: %v", e.Address, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
