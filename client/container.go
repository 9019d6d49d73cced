// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stevedore-project/stevedore/lib/netutil"
	"github.com/stevedore-project/stevedore/stream"
)

// mediaTypeMultiplexed is the daemon's content type for demux-framed
// streams; raw-stream marks TTY sessions that bypass framing.
const (
	mediaTypeMultiplexed = "application/vnd.docker.multiplexed-stream"
	mediaTypeRaw         = "application/vnd.docker.raw-stream"
)

// Ping checks daemon liveness over the negotiated transport.
func (c *Client) Ping(ctx context.Context) error {
	response, err := c.doRaw(ctx, http.MethodGet, "/_ping", nil, nil, nil)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if err := checkStatus(response); err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(response.Body, netutil.MaxBodySize))
	return nil
}

// LogsOptions selects which log streams to fetch and how.
type LogsOptions struct {
	// Stdout and Stderr select the streams; at least one must be set.
	Stdout bool
	Stderr bool
	// Follow keeps the stream open for new output.
	Follow bool
	// Timestamps prefixes each line with its time.
	Timestamps bool
	// Tail limits output to the last N lines; empty means all.
	Tail string
}

// LogStream is a container's log output. Multiplexed reports whether
// the body uses demux framing (non-TTY container) or raw bytes (TTY).
// The caller must Close the stream; closing early resets the
// underlying connection instead of leaking it.
type LogStream struct {
	// Body is the undecoded response body.
	Body io.ReadCloser
	// Multiplexed is true when Body carries demux frames.
	Multiplexed bool
}

// Frames returns a frame decoder over the body. Only valid when
// Multiplexed is true.
func (s *LogStream) Frames() *stream.Demuxer {
	return stream.NewDemuxer(s.Body)
}

// Close releases the stream's connection.
func (s *LogStream) Close() error { return s.Body.Close() }

// ContainerLogs fetches a container's logs as a lazy stream. Framing
// is decided by the daemon from the container's TTY setting and
// reported via LogStream.Multiplexed.
func (c *Client) ContainerLogs(ctx context.Context, containerID string, options LogsOptions) (*LogStream, error) {
	if !options.Stdout && !options.Stderr {
		return nil, fmt.Errorf("client: logs request selects neither stdout nor stderr")
	}

	query := url.Values{}
	query.Set("stdout", strconv.FormatBool(options.Stdout))
	query.Set("stderr", strconv.FormatBool(options.Stderr))
	query.Set("follow", strconv.FormatBool(options.Follow))
	query.Set("timestamps", strconv.FormatBool(options.Timestamps))
	if options.Tail != "" {
		query.Set("tail", options.Tail)
	}

	response, err := c.do(ctx, http.MethodGet, "/containers/"+containerID+"/logs", query, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(response); err != nil {
		return nil, err
	}

	return &LogStream{
		Body:        response.Body,
		Multiplexed: response.Header.Get("Content-Type") != mediaTypeRaw,
	}, nil
}

// AttachOptions selects the streams joined to an attach connection.
type AttachOptions struct {
	Stdin  bool
	Stdout bool
	Stderr bool
	// Stream requests live attachment rather than replayed output.
	Stream bool
}

// Attachment is an interactive connection to a container's standard
// streams. For non-TTY containers output arrives demux-framed and
// stdin is written raw; for TTY containers both directions are raw.
type Attachment struct {
	// Conn is the upgraded bidirectional connection.
	Conn *HijackedConn
	// Multiplexed is true when output carries demux frames.
	Multiplexed bool
}

// Frames returns a frame decoder over the attach output. Only valid
// when Multiplexed is true.
func (a *Attachment) Frames() *stream.Demuxer {
	return stream.NewDemuxer(a.Conn)
}

// Close tears down the attach connection.
func (a *Attachment) Close() error { return a.Conn.Close() }

// ContainerAttach attaches to a container's standard streams over an
// upgraded connection.
func (c *Client) ContainerAttach(ctx context.Context, containerID string, options AttachOptions) (*Attachment, error) {
	query := url.Values{}
	query.Set("stdin", strconv.FormatBool(options.Stdin))
	query.Set("stdout", strconv.FormatBool(options.Stdout))
	query.Set("stderr", strconv.FormatBool(options.Stderr))
	query.Set("stream", strconv.FormatBool(options.Stream))

	conn, err := c.hijack(ctx, http.MethodPost, "/containers/"+containerID+"/attach", query, nil, "tcp")
	if err != nil {
		return nil, err
	}

	// TTY state is a container property; the daemon does not repeat
	// it on the upgrade response. Callers that allocated a TTY should
	// read raw; everyone else demuxes. Inspect is authoritative but
	// out of this layer's scope, so expose the demux default.
	return &Attachment{Conn: conn, Multiplexed: true}, nil
}

// ContainerWait blocks until the container exits and returns its exit
// code.
func (c *Client) ContainerWait(ctx context.Context, containerID string) (int64, error) {
	var result struct {
		StatusCode int64 `json:"StatusCode"`
		Error      *struct {
			Message string `json:"Message"`
		} `json:"Error"`
	}
	if err := c.post(ctx, "/containers/"+containerID+"/wait", nil, nil, "", &result); err != nil {
		return 0, err
	}
	if result.Error != nil {
		return result.StatusCode, &DaemonError{StatusCode: http.StatusInternalServerError, Message: result.Error.Message}
	}
	return result.StatusCode, nil
}
