// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the build session: a secondary control
// stream the daemon opens back to the client during image builds that
// need local context.
//
// The package is organized around the session data flow:
//
//   - protocol.go: wire format for the control stream (framed binary
//     messages with CBOR payloads)
//   - session.go: service registration and concurrent dispatch of
//     daemon-initiated invocations
//   - filesync.go: on-demand directory transfer (STAT/REQ/DATA/FIN/ERR
//     packet state machine)
//   - sshforward.go: SSH-agent socket forwarding
//   - authprovider.go: registry credential lookup
//
// A Session is created with its services registered before the build
// request is sent; the session id travels on the build request so the
// daemon can correlate its callback stream. Invocations dispatched
// from the control stream run concurrently, each with its own ordered
// byte stream; the session guarantees bytes for one invocation are
// never delivered to another. Closing the session — because the build
// response stream ended or the control stream failed — cancels every
// active invocation.
package session
