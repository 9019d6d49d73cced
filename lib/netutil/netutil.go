// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides network and HTTP I/O utilities for Stevedore.
//
// HTTP response helpers (ReadBody, DecodeBody, ErrorBody) bound all
// response body reads at MaxBodySize to prevent unbounded memory
// allocation from a misbehaving daemon. They are for buffered JSON API
// responses — not for streaming responses (logs, attach, build output),
// which are read incrementally through the stream package.
//
// Connection helpers (Bridge, IsExpectedCloseError) serve the
// build-session SSH-agent forward, which relays bytes between a local
// agent socket and a daemon stream until either side closes.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxBodySize is the bound on buffered API response body reads: 64 MB.
// It exists solely so that a pathological response cannot exhaust
// memory; legitimate daemon JSON bodies are orders of magnitude
// smaller.
const MaxBodySize int64 = 64 << 20

// ReadBody reads a JSON API response body up to MaxBodySize bytes.
// Use instead of io.ReadAll when reading daemon response bodies.
func ReadBody(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxBodySize))
}

// DecodeBody reads a JSON API response body (up to MaxBodySize bytes)
// and JSON-decodes it into v.
func DecodeBody(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxBodySize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body and returns it as a
// string for diagnostic error messages. Read errors are ignored — a
// partial or empty body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxBodySize))
	return string(data)
}
