// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream decodes the daemon's streaming response bodies.
//
// Three independently composable decoders operate on a response body:
//
//   - demux.go: the multiplexed stdout/stderr framing used by logs,
//     attach, and non-TTY exec. Each frame is an 8-byte header (1 byte
//     stream kind, 3 reserved bytes, 4-byte big-endian length)
//     followed by exactly that many payload bytes.
//   - chunked.go: HTTP/1.1 chunked transfer encoding, for raw
//     connections where net/http is not managing the body (hijacked
//     attach streams served with Transfer-Encoding: chunked).
//   - jsonline.go: the newline-delimited JSON progress stream emitted
//     by build, pull, and push endpoints.
//
// All decoders are single-pass pull readers: consumption is strictly
// forward, and a short read mid-header or mid-payload is always
// reported as an error, never silently treated as end of stream.
// Sessions with a TTY allocated are not framed by the daemon; read the
// body directly instead of wrapping it in a Demuxer.
package stream
