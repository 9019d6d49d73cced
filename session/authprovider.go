// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"io"

	"github.com/stevedore-project/stevedore/lib/codec"
)

// MethodAuth is the service method name for registry credential
// lookup.
const MethodAuth = "auth"

// AuthConfig is one registry's credentials.
type AuthConfig struct {
	Username string `cbor:"username"`
	Secret   string `cbor:"secret"`
}

// authRequest is the daemon's credential lookup: one registry host per
// request.
type authRequest struct {
	Host string `cbor:"host"`
}

// AuthProvider answers registry credential lookups from a static map
// of host → credentials. An unknown host yields empty credentials
// rather than an error: anonymous pulls are a normal outcome, not a
// failure.
type AuthProvider struct {
	// Credentials maps registry host ("registry.example.com") to its
	// credentials.
	Credentials map[string]AuthConfig
}

// Compile-time interface check.
var _ Handler = (*AuthProvider)(nil)

// Serve answers lookup requests until the daemon closes the stream.
func (p *AuthProvider) Serve(ctx context.Context, stream *Stream) error {
	for {
		raw, err := stream.Recv(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var request authRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return &ProtocolError{Detail: "undecodable auth request", Err: err}
		}

		response, err := codec.Marshal(p.Credentials[request.Host])
		if err != nil {
			return err
		}
		if err := stream.Send(response); err != nil {
			return err
		}
	}
}
