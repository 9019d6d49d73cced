// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package client executes HTTP requests against the container daemon.
//
// A Client binds one resolved transport endpoint to one negotiated API
// version for its whole lifetime. Request paths are built as
// /v{major}.{minor}/<resource>; the version is discovered from the
// daemon on first use and cached. Response bodies are returned
// unconsumed so log, attach, and build output can be processed as it
// arrives through the stream package.
//
// The client never retries: transport failures, daemon errors, and
// protocol violations surface to the caller as distinguishable error
// types (transport.ConnectError, *DaemonError, *VersionError, and the
// stream package's decode errors).
package client
