// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package transport

// newNamedPipeDialer rejects npipe endpoints on platforms without
// named pipes.
func newNamedPipeDialer(path string) (Dialer, error) {
	return nil, &AddressError{Address: path, Reason: "npipe endpoints require Windows"}
}
