// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

// defaultEndpoint returns the platform's default daemon endpoint: the
// standard named pipe.
func defaultEndpoint() Endpoint {
	return Endpoint{Scheme: SchemeNamedPipe, Address: DefaultNamedPipe}
}
