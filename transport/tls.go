// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Compile-time interface check.
var _ Dialer = (*TLSDialer)(nil)

// TLSDialer connects to a daemon over TCP with TLS. The handshake is
// part of the dial: DialContext returns only fully established,
// verified connections, and the TCP handle is closed on any handshake
// failure or cancellation.
type TLSDialer struct {
	// Address is the daemon's host:port.
	Address string

	// Config is the TLS configuration. A nil or zero Config verifies
	// against the OS trust store.
	Config *tls.Config

	// Timeout bounds the TCP dial independently of the context.
	Timeout time.Duration
}

// DialContext opens a TCP connection and completes the TLS handshake.
func (d *TLSDialer) DialContext(ctx context.Context) (net.Conn, error) {
	rawConn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, &ConnectError{Address: d.Address, Err: err}
	}

	config := d.Config
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		host, _, splitErr := net.SplitHostPort(d.Address)
		if splitErr != nil {
			host = d.Address
		}
		config = config.Clone()
		config.ServerName = host
	}

	tlsConn := tls.Client(rawConn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, &TLSError{Address: d.Address, Err: err}
	}
	return tlsConn, nil
}

// LoadTLSConfig loads daemon TLS material from a certificate
// directory containing ca.pem, cert.pem, and key.pem. The client
// certificate pair is optional (server-only TLS); the CA bundle is
// optional when verify is false or the OS trust store should be used.
// An empty certPath with verify true produces a config that verifies
// against the OS trust store.
func LoadTLSConfig(certPath string, verify bool) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: !verify,
		MinVersion:         tls.VersionTLS12,
	}
	if certPath == "" {
		return config, nil
	}

	caData, err := os.ReadFile(filepath.Join(certPath, "ca.pem"))
	switch {
	case err == nil:
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caData) {
			return nil, &TLSError{Address: certPath, Err: fmt.Errorf("ca.pem contains no certificates")}
		}
		config.RootCAs = pool
	case !os.IsNotExist(err):
		return nil, &TLSError{Address: certPath, Err: err}
	}

	certFile := filepath.Join(certPath, "cert.pem")
	keyFile := filepath.Join(certPath, "key.pem")
	if _, err := os.Stat(certFile); err == nil {
		pair, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, &TLSError{Address: certPath, Err: err}
		}
		config.Certificates = []tls.Certificate{pair}
	}
	return config, nil
}
