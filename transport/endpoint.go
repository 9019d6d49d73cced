// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/tls"
	"net/url"
	"os"
	"strings"
)

// Scheme identifies a channel kind. The set is closed: every daemon
// address resolves to exactly one of these.
type Scheme string

const (
	// SchemeUnix is a local Unix domain socket.
	SchemeUnix Scheme = "unix"
	// SchemeNamedPipe is a local Windows named pipe.
	SchemeNamedPipe Scheme = "npipe"
	// SchemeTCP is plain or TLS TCP; TLS when the Endpoint carries
	// TLS material.
	SchemeTCP Scheme = "tcp"
	// SchemeSSH tunnels through an SSH session on a remote host.
	SchemeSSH Scheme = "ssh"
)

// Default daemon addresses per channel kind.
const (
	// DefaultUnixSocket is the daemon's standard local socket path.
	DefaultUnixSocket = "/var/run/docker.sock"
	// DefaultNamedPipe is the daemon's standard Windows pipe path.
	DefaultNamedPipe = "//./pipe/docker_engine"
	// DefaultTCPHost is the daemon's standard unencrypted TCP address.
	DefaultTCPHost = "localhost:2375"
)

// Environment variable names for endpoint resolution.
const (
	// EnvHost overrides the daemon address ("unix:///path",
	// "npipe:////./pipe/name", "tcp://host:port", "ssh://user@host").
	EnvHost = "DOCKER_HOST"
	// EnvCertPath names a directory containing ca.pem, cert.pem,
	// key.pem for TLS connections.
	EnvCertPath = "DOCKER_CERT_PATH"
	// EnvTLSVerify enables TLS with server verification when set
	// non-empty.
	EnvTLSVerify = "DOCKER_TLS_VERIFY"
)

// Endpoint is a resolved daemon address: scheme, address, and optional
// TLS material. Immutable once resolved; the client constructs its
// Dialer from it exactly once.
type Endpoint struct {
	// Scheme selects the channel kind.
	Scheme Scheme
	// Address is scheme-specific: socket path, pipe path, host:port,
	// or SSH host[:port].
	Address string
	// User is the SSH user name; only meaningful for SchemeSSH.
	User string
	// TLS, when non-nil, upgrades a TCP endpoint to TLS.
	TLS *tls.Config
}

// ParseEndpoint resolves a daemon address string into an Endpoint.
// Accepted forms: "unix://<path>", "npipe://<path>", "tcp://host[:port]",
// "http://host[:port]", "https://host[:port]", "ssh://[user@]host[:port]".
// An empty string resolves to the platform default local endpoint.
func ParseEndpoint(address string) (Endpoint, error) {
	if address == "" {
		return defaultEndpoint(), nil
	}

	scheme, rest, found := strings.Cut(address, "://")
	if !found {
		return Endpoint{}, &AddressError{Address: address, Reason: "missing scheme"}
	}
	if rest == "" {
		return Endpoint{}, &AddressError{Address: address, Reason: "empty address"}
	}

	switch scheme {
	case "unix":
		return Endpoint{Scheme: SchemeUnix, Address: rest}, nil
	case "npipe":
		return Endpoint{Scheme: SchemeNamedPipe, Address: rest}, nil
	case "tcp", "http":
		return Endpoint{Scheme: SchemeTCP, Address: withDefaultPort(rest, "2375")}, nil
	case "https":
		return Endpoint{Scheme: SchemeTCP, Address: withDefaultPort(rest, "2376"), TLS: &tls.Config{}}, nil
	case "ssh":
		parsed, err := url.Parse(address)
		if err != nil || parsed.Hostname() == "" {
			return Endpoint{}, &AddressError{Address: address, Reason: "malformed ssh address"}
		}
		host := parsed.Hostname()
		if port := parsed.Port(); port != "" {
			host = host + ":" + port
		} else {
			host = host + ":22"
		}
		return Endpoint{Scheme: SchemeSSH, Address: host, User: parsed.User.Username()}, nil
	default:
		return Endpoint{}, &AddressError{Address: address, Reason: "unsupported scheme " + scheme}
	}
}

// FromEnvironment resolves the endpoint from DOCKER_HOST,
// DOCKER_CERT_PATH, and DOCKER_TLS_VERIFY. Unset DOCKER_HOST yields
// the platform default local endpoint. TLS material, when configured,
// applies only to TCP endpoints.
func FromEnvironment() (Endpoint, error) {
	endpoint, err := ParseEndpoint(os.Getenv(EnvHost))
	if err != nil {
		return Endpoint{}, err
	}

	certPath := os.Getenv(EnvCertPath)
	verify := os.Getenv(EnvTLSVerify) != ""
	if endpoint.Scheme == SchemeTCP && (certPath != "" || verify) {
		tlsConfig, err := LoadTLSConfig(certPath, verify)
		if err != nil {
			return Endpoint{}, err
		}
		endpoint.TLS = tlsConfig
		// The conventional TLS port replaces the plaintext default
		// when the address came from the default.
		if endpoint.Address == DefaultTCPHost {
			endpoint.Address = "localhost:2376"
		}
	}
	return endpoint, nil
}

// withDefaultPort appends the default port when the address has none.
func withDefaultPort(address, port string) string {
	if strings.LastIndexByte(address, ':') > strings.LastIndexByte(address, ']') {
		return address
	}
	return address + ":" + port
}
