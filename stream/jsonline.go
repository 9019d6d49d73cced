// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/json"
	"fmt"
	"io"
)

// Progress is one message of the newline-delimited JSON stream emitted
// by build, pull, and push endpoints. Fields are populated as the
// daemon sees fit; unset fields are empty.
type Progress struct {
	// Stream carries raw output lines (build step output).
	Stream string `json:"stream,omitempty"`
	// Status is a human-readable phase description ("Downloading").
	Status string `json:"status,omitempty"`
	// ID identifies the layer or object the message refers to.
	ID string `json:"id,omitempty"`
	// Progress is the rendered progress bar text.
	Progress string `json:"progress,omitempty"`
	// ProgressDetail carries the numeric progress counters.
	ProgressDetail *ProgressDetail `json:"progressDetail,omitempty"`
	// ErrorMessage is set when the operation failed server-side.
	ErrorMessage string `json:"error,omitempty"`
	// Aux carries operation-specific payloads (image ID on build).
	Aux json.RawMessage `json:"aux,omitempty"`
}

// ProgressDetail is the numeric part of a progress message.
type ProgressDetail struct {
	Current int64 `json:"current,omitempty"`
	Total   int64 `json:"total,omitempty"`
}

// JSONMessageError reports a progress message whose error field was
// set: the operation failed on the daemon side even though the HTTP
// exchange succeeded.
type JSONMessageError struct {
	Message string
}

func (e *JSONMessageError) Error() string {
	return fmt.Sprintf("stream: daemon reported error: %s", e.Message)
}

// ProgressDecoder reads a stream of JSON progress messages. It is a
// single-pass pull decoder in the same mold as Demuxer.
type ProgressDecoder struct {
	decoder *json.Decoder
	failed  error
}

// NewProgressDecoder returns a ProgressDecoder reading from r.
func NewProgressDecoder(r io.Reader) *ProgressDecoder {
	return &ProgressDecoder{decoder: json.NewDecoder(r)}
}

// Next reads one progress message. Returns io.EOF at clean end of
// stream. A message carrying a daemon error is returned together with
// a *JSONMessageError; the stream remains readable, since the daemon
// may continue emitting messages after a per-layer failure.
func (p *ProgressDecoder) Next() (Progress, error) {
	if p.failed != nil {
		return Progress{}, p.failed
	}
	var message Progress
	if err := p.decoder.Decode(&message); err != nil {
		if err == io.EOF {
			return Progress{}, io.EOF
		}
		p.failed = fmt.Errorf("stream: decoding progress message: %w", err)
		return Progress{}, p.failed
	}
	if message.ErrorMessage != "" {
		return message, &JSONMessageError{Message: message.ErrorMessage}
	}
	return message, nil
}
