// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/stevedore-project/stevedore/session"
	"github.com/stevedore-project/stevedore/stream"
)

// Header names correlating a build request with its session callback
// stream.
const (
	headerSessionID      = "X-Session-Id"
	headerSessionMethods = "X-Session-Methods"
)

// BuildOptions configures an image build.
type BuildOptions struct {
	// Tags are the names applied to the built image.
	Tags []string
	// Dockerfile is the path of the Dockerfile within the context.
	// Empty means "Dockerfile".
	Dockerfile string
	// BuildArgs are the build-time variables.
	BuildArgs map[string]string
	// Labels are applied to the built image.
	Labels map[string]string
	// NoCache disables layer cache reuse.
	NoCache bool
	// Pull forces a pull of base images even when present.
	Pull bool
	// Context is the build context as a tar stream (see the
	// buildcontext package). Nil when the build needs no local
	// context.
	Context io.Reader
	// ContextMediaType is the Content-Type for Context. Empty means
	// buildcontext's uncompressed tar.
	ContextMediaType string
	// Session, when non-nil, is served alongside the build: its id is
	// attached to the request and its control stream is driven until
	// the build response ends.
	Session *session.Session
}

// Build is an in-flight image build. Progress messages arrive as the
// daemon produces them; Close tears down the response stream and the
// session.
type Build struct {
	body        io.ReadCloser
	progress    *stream.ProgressDecoder
	cancelSess  context.CancelFunc
	sessionDone chan error
	sessionErr  error
}

// Next returns the next progress message. io.EOF marks the end of the
// build output.
func (b *Build) Next() (stream.Progress, error) {
	return b.progress.Next()
}

// Close releases the response stream and, when a session was attached,
// cancels it and waits for every invocation to finish. No invocation
// outlives this call.
func (b *Build) Close() error {
	err := b.body.Close()
	b.teardownSession()
	return err
}

// SessionErr reports how the session's control stream ended: nil for
// clean shutdown, the fatal stream error otherwise. Valid after Close.
func (b *Build) SessionErr() error {
	return b.sessionErr
}

// ImageBuild starts an image build. When options.Session is set the
// session's control stream is opened first — its id must be live
// before the daemon handles the build request — and served on a
// background goroutine for the build's duration.
func (c *Client) ImageBuild(ctx context.Context, options BuildOptions) (*Build, error) {
	query := url.Values{}
	for _, tag := range options.Tags {
		query.Add("t", tag)
	}
	if options.Dockerfile != "" {
		query.Set("dockerfile", options.Dockerfile)
	}
	if options.NoCache {
		query.Set("nocache", "1")
	}
	if options.Pull {
		query.Set("pull", "1")
	}
	if len(options.BuildArgs) > 0 {
		encoded, err := json.Marshal(options.BuildArgs)
		if err != nil {
			return nil, fmt.Errorf("client: encoding build args: %w", err)
		}
		query.Set("buildargs", string(encoded))
	}
	if len(options.Labels) > 0 {
		encoded, err := json.Marshal(options.Labels)
		if err != nil {
			return nil, fmt.Errorf("client: encoding labels: %w", err)
		}
		query.Set("labels", string(encoded))
	}

	headers := http.Header{}
	mediaType := options.ContextMediaType
	if mediaType == "" {
		mediaType = "application/x-tar"
	}
	headers.Set("Content-Type", mediaType)

	build := &Build{}
	if options.Session != nil {
		query.Set("session", options.Session.ID())
		headers.Set(headerSessionID, options.Session.ID())
		headers.Set(headerSessionMethods, strings.Join(options.Session.Methods(), ","))

		sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		controlConn, err := c.hijack(ctx, http.MethodPost, "/session", nil, http.Header{
			headerSessionID:      []string{options.Session.ID()},
			headerSessionMethods: []string{strings.Join(options.Session.Methods(), ",")},
		}, "h2c")
		if err != nil {
			cancel()
			return nil, err
		}

		build.cancelSess = cancel
		build.sessionDone = make(chan error, 1)
		go func() {
			build.sessionDone <- options.Session.Serve(sessionCtx, controlConn)
			close(build.sessionDone)
		}()
	}

	response, err := c.do(ctx, http.MethodPost, "/build", query, headers, options.Context)
	if err != nil {
		build.teardownSession()
		return nil, err
	}
	if err := checkStatus(response); err != nil {
		build.teardownSession()
		return nil, err
	}

	build.body = response.Body
	build.progress = stream.NewProgressDecoder(response.Body)
	return build, nil
}

// teardownSession cancels the session's control stream and records how
// it ended. Idempotent: the cancel func is cleared on first use.
func (b *Build) teardownSession() {
	if b.cancelSess == nil {
		return
	}
	b.cancelSess()
	b.sessionErr = <-b.sessionDone
	b.cancelSess = nil
}
