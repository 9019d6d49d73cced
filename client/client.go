// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/stevedore-project/stevedore/lib/version"
	"github.com/stevedore-project/stevedore/transport"
)

// Options configures a Client.
type Options struct {
	// Endpoint is the resolved daemon endpoint. Zero value means
	// resolve from the environment.
	Endpoint transport.Endpoint

	// PinnedVersion fixes the API version instead of negotiating down
	// from DefaultVersion. Negotiation still validates it against the
	// server.
	PinnedVersion APIVersion

	// Logger receives structured debug logging. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Client is a handle on one daemon. It owns the transport dialer and
// the negotiated API version; both are fixed for the client's
// lifetime.
type Client struct {
	endpoint   transport.Endpoint
	dialer     transport.Dialer
	httpClient *http.Client
	logger     *slog.Logger
	pinned     APIVersion

	versionMu  sync.Mutex
	negotiated APIVersion
}

// New creates a Client for the given options. The channel kind is
// selected here, once; no connection is opened until the first
// request.
func New(options Options) (*Client, error) {
	endpoint := options.Endpoint
	if endpoint.Scheme == "" {
		resolved, err := transport.FromEnvironment()
		if err != nil {
			return nil, err
		}
		endpoint = resolved
	}

	dialer, err := transport.NewDialer(endpoint)
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   endpoint,
		dialer:     dialer,
		httpClient: &http.Client{Transport: transport.HTTPTransport(dialer)},
		logger:     logger,
		pinned:     options.PinnedVersion,
	}, nil
}

// FromEnvironment creates a Client from DOCKER_HOST and friends.
func FromEnvironment() (*Client, error) {
	return New(Options{})
}

// Close releases idle connections held by the HTTP transport.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	if closer, ok := c.dialer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Endpoint returns the endpoint the client was constructed for.
func (c *Client) Endpoint() transport.Endpoint {
	return c.endpoint
}

// requestHost is the placeholder URL host for requests; the transport
// dials the real endpoint regardless of it.
const requestHost = "daemon"

// scheme returns the URL scheme for requests. TLS endpoints need
// "https" so net/http accepts the connection's TLS state.
func (c *Client) scheme() string {
	if c.endpoint.TLS != nil {
		return "https"
	}
	return "http"
}

// do executes one request against a versioned API path. The path is
// the resource path without version prefix ("/containers/json"). The
// response body is unconsumed; the caller owns it and must close it.
// Abandoning the body early closes the underlying connection rather
// than leaking it (net/http resets a connection whose body was not
// drained).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers http.Header, body io.Reader) (*http.Response, error) {
	apiVersion, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	return c.doRaw(ctx, method, "/v"+apiVersion.String()+path, query, headers, body)
}

// doRaw executes one request on an exact path with no version prefix
// applied. Used by do, by negotiation (which must run before any
// version exists), and by the session endpoint (whose upgrade happens
// outside versioned space on older daemons).
func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, headers http.Header, body io.Reader) (*http.Response, error) {
	requestURL := url.URL{
		Scheme:   c.scheme(),
		Host:     requestHost,
		Path:     path,
		RawQuery: query.Encode(),
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("client: building %s %s: %w", method, path, err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	for name, values := range headers {
		for _, value := range values {
			request.Header.Add(name, value)
		}
	}

	c.logger.Debug("daemon request", "method", method, "path", path)
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	return response, nil
}

// get performs a versioned GET and decodes the JSON response into v.
func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	response, err := c.do(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if err := checkStatus(response); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return decodeBody(response, v)
}

// post performs a versioned POST with an optional JSON body and
// decodes the JSON response into v (nil v discards the body).
func (c *Client) post(ctx context.Context, path string, query url.Values, body io.Reader, contentType string, v any) error {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	response, err := c.do(ctx, http.MethodPost, path, query, headers, body)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if err := checkStatus(response); err != nil {
		return err
	}
	if v == nil {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	return decodeBody(response, v)
}
