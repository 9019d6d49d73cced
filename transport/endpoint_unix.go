// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package transport

// defaultEndpoint returns the platform's default daemon endpoint: the
// standard Unix socket.
func defaultEndpoint() Endpoint {
	return Endpoint{Scheme: SchemeUnix, Address: DefaultUnixSocket}
}
