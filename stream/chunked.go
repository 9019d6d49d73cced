// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ChunkSizeError reports a chunk-size line that is not valid hex or
// carries a malformed extension.
type ChunkSizeError struct {
	Line string
}

func (e *ChunkSizeError) Error() string {
	return fmt.Sprintf("stream: invalid chunk size line %q", e.Line)
}

// TrailerError reports a malformed chunk terminator or trailer
// section after the final zero-size chunk.
type TrailerError struct {
	Detail string
}

func (e *TrailerError) Error() string {
	return fmt.Sprintf("stream: malformed chunk trailer: %s", e.Detail)
}

// Dechunker decodes HTTP/1.1 chunked transfer encoding into a flat
// byte stream. net/http dechunks managed response bodies itself; this
// decoder serves hijacked connections where the daemon keeps speaking
// chunked framing on the raw stream.
//
// Malformed input fails the stream permanently — the decoder never
// guesses a chunk boundary and continues.
type Dechunker struct {
	reader    *bufio.Reader
	remaining int
	done      bool
	failed    error
}

// NewDechunker returns a Dechunker reading chunked-encoded data from r.
func NewDechunker(r io.Reader) *Dechunker {
	return &Dechunker{reader: bufio.NewReader(r)}
}

// Read implements io.Reader over the dechunked byte sequence. Returns
// io.EOF after the terminating zero-size chunk and its trailer have
// been consumed.
func (d *Dechunker) Read(p []byte) (int, error) {
	if d.failed != nil {
		return 0, d.failed
	}
	if d.done {
		return 0, io.EOF
	}

	if d.remaining == 0 {
		if err := d.startChunk(); err != nil {
			if err == io.EOF && !d.done {
				// Stream ended before the terminating zero-size chunk.
				err = &TrailerError{Detail: "stream ended before terminating chunk"}
			}
			if err != io.EOF {
				d.failed = err
			}
			return 0, err
		}
	}

	if len(p) > d.remaining {
		p = p[:d.remaining]
	}
	n, err := d.reader.Read(p)
	d.remaining -= n
	if err != nil {
		if err == io.EOF {
			err = &ShortReadError{Section: "payload", Want: d.remaining + n, Got: n}
		}
		d.failed = err
		return n, err
	}

	if d.remaining == 0 {
		if err := d.endChunk(); err != nil {
			d.failed = err
			return n, err
		}
	}
	return n, nil
}

// startChunk parses the next chunk-size line. On the zero-size chunk
// it consumes the trailer and flags completion by returning io.EOF.
func (d *Dechunker) startChunk() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}

	// Chunk extensions (";ext=val") are permitted and ignored.
	sizeField, _, _ := strings.Cut(line, ";")
	sizeField = strings.TrimSpace(sizeField)
	size, ok := parseHex(sizeField)
	if !ok {
		return &ChunkSizeError{Line: line}
	}

	if size == 0 {
		if err := d.readTrailer(); err != nil {
			return err
		}
		d.done = true
		return io.EOF
	}
	d.remaining = size
	return nil
}

// endChunk consumes the CRLF that terminates a chunk's payload.
func (d *Dechunker) endChunk() error {
	var terminator [2]byte
	if _, err := io.ReadFull(d.reader, terminator[:]); err != nil {
		return &TrailerError{Detail: "missing chunk terminator"}
	}
	if terminator[0] != '\r' || terminator[1] != '\n' {
		return &TrailerError{Detail: fmt.Sprintf("chunk terminator %q is not CRLF", terminator)}
	}
	return nil
}

// readTrailer consumes trailer lines after the zero-size chunk up to
// and including the blank line that ends the body.
func (d *Dechunker) readTrailer() error {
	for {
		line, err := d.readLine()
		if err != nil {
			return &TrailerError{Detail: "stream ended inside trailer"}
		}
		if line == "" {
			return nil
		}
		// Trailer fields must at least look like "Name: value".
		if !strings.Contains(line, ":") {
			return &TrailerError{Detail: fmt.Sprintf("trailer line %q is not a header field", line)}
		}
	}
}

// readLine reads one CRLF-terminated line, without the terminator.
func (d *Dechunker) readLine() (string, error) {
	line, err := d.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", io.EOF
		}
		return "", &TrailerError{Detail: "stream ended mid-line"}
	}
	if !strings.HasSuffix(line, "\r\n") {
		return "", &TrailerError{Detail: fmt.Sprintf("line %q lacks CRLF terminator", strings.TrimSuffix(line, "\n"))}
	}
	return strings.TrimSuffix(line, "\r\n"), nil
}

// parseHex parses a bounded hex chunk size. Returns false on empty
// input, non-hex digits, or a value that would overflow the 16 MB
// frame bound (a chunk that large indicates a corrupt stream).
func parseHex(s string) (int, bool) {
	if s == "" || len(s) > 7 {
		return 0, false
	}
	value := 0
	for _, c := range s {
		var digit int
		switch {
		case c >= '0' && c <= '9':
			digit = int(c - '0')
		case c >= 'a' && c <= 'f':
			digit = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			digit = int(c-'A') + 10
		default:
			return 0, false
		}
		value = value<<4 | digit
	}
	return value, true
}
