// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/stevedore-project/stevedore/lib/version"
	"github.com/stevedore-project/stevedore/stream"
)

// HijackedConn is a raw bidirectional connection obtained by upgrading
// an HTTP request (attach, exec start, session). Reads must go through
// Read rather than the inner connection: the response parser may have
// buffered stream bytes beyond the header section.
type HijackedConn struct {
	conn   net.Conn
	reader io.Reader
}

// Read reads from the upgraded stream, including any bytes buffered
// during header parsing.
func (h *HijackedConn) Read(p []byte) (int, error) { return h.reader.Read(p) }

// Write writes to the upgraded stream.
func (h *HijackedConn) Write(p []byte) (int, error) { return h.conn.Write(p) }

// Close closes the underlying connection. Always called on
// abandonment so the transport handle is released.
func (h *HijackedConn) Close() error { return h.conn.Close() }

// CloseWrite half-closes the write side when the transport supports
// it, signalling end of stdin to the daemon while reads continue.
func (h *HijackedConn) CloseWrite() error {
	if closeWriter, ok := h.conn.(interface{ CloseWrite() error }); ok {
		return closeWriter.CloseWrite()
	}
	return h.conn.Close()
}

// SetDeadline forwards to the underlying connection.
func (h *HijackedConn) SetDeadline(t time.Time) error { return h.conn.SetDeadline(t) }

// hijack performs an upgraded request on a dedicated connection:
// writes the request, parses the response header section, and on 101
// returns the raw connection for bidirectional use. The connection is
// closed on every error path. The caller owns the returned connection
// exclusively.
func (c *Client) hijack(ctx context.Context, method, path string, query url.Values, headers http.Header, upgradeProto string) (*HijackedConn, error) {
	apiVersion, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := c.dialer.DialContext(ctx)
	if err != nil {
		return nil, err
	}

	// Release the handle if ctx is cancelled while the exchange is in
	// flight; stop watching once hijack returns.
	exchangeDone := make(chan struct{})
	defer close(exchangeDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-exchangeDone:
		}
	}()

	requestURL := url.URL{
		Scheme:   c.scheme(),
		Host:     requestHost,
		Path:     "/v" + apiVersion.String() + path,
		RawQuery: query.Encode(),
	}
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: building %s %s: %w", method, path, err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set("Connection", "Upgrade")
	request.Header.Set("Upgrade", upgradeProto)
	for name, values := range headers {
		for _, value := range values {
			request.Header.Add(name, value)
		}
	}

	if err := request.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: writing upgrade request %s: %w", path, err)
	}

	reader := bufio.NewReader(conn)
	response, err := http.ReadResponse(reader, request)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: reading upgrade response for %s: %w", path, err)
	}

	switch response.StatusCode {
	case http.StatusSwitchingProtocols:
		return &HijackedConn{conn: conn, reader: reader}, nil
	case http.StatusOK:
		// Older daemons keep streaming on the same connection without
		// a formal 101. The remaining bytes are the stream, possibly
		// chunk-framed when the daemon declared chunked transfer
		// coding on the response.
		var streamReader io.Reader = reader
		for _, encoding := range response.TransferEncoding {
			if encoding == "chunked" {
				streamReader = stream.NewDechunker(reader)
				break
			}
		}
		return &HijackedConn{conn: conn, reader: streamReader}, nil
	default:
		err := checkStatus(response)
		conn.Close()
		if err == nil {
			err = fmt.Errorf("client: unexpected upgrade status %d for %s", response.StatusCode, path)
		}
		return nil, err
	}
}
