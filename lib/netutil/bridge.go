// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
)

// copyResult holds the outcome of one direction of a bidirectional copy.
type copyResult struct {
	bytesCopied int64
	err         error
}

// Bridge copies bytes bidirectionally between two streams until either
// direction finishes. Both streams are closed before returning so the
// surviving copy goroutine unblocks. Returns the error from the
// direction that terminated first, or nil when termination was normal
// connection closure (EOF, peer disconnect, broken pipe, reset).
//
// The session SSH-agent forward uses this to relay between the local
// agent socket and a daemon-opened stream; each forward owns exactly
// one bridge, so bytes can never cross between concurrent forwards.
func Bridge(a io.ReadWriteCloser, b io.ReadWriteCloser) error {
	done := make(chan copyResult, 2)

	go func() {
		bytesCopied, err := io.Copy(b, a)
		done <- copyResult{bytesCopied, err}
	}()

	go func() {
		bytesCopied, err := io.Copy(a, b)
		done <- copyResult{bytesCopied, err}
	}()

	// Wait for one direction to finish, then close both to unblock the other.
	first := <-done
	a.Close()
	b.Close()
	<-done

	if first.err != nil && !IsExpectedCloseError(first.err) {
		return first.err
	}
	return nil
}
