// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameKind identifies which standard stream a demux frame belongs to.
// The values are the daemon's wire encoding and must not be reordered.
type FrameKind byte

const (
	// Stdin marks a frame written to the container's standard input.
	Stdin FrameKind = 0
	// Stdout marks a frame from the container's standard output.
	Stdout FrameKind = 1
	// Stderr marks a frame from the container's standard error.
	Stderr FrameKind = 2
)

// String returns the conventional stream name.
func (k FrameKind) String() string {
	switch k {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// frameHeaderLength is the fixed demux header size: 1 byte stream
// kind, 3 reserved zero bytes, 4 bytes big-endian payload length.
const frameHeaderLength = 8

// maxFramePayload bounds a single frame's payload at 16 MB. The daemon
// emits frames far smaller than this; the limit exists so a corrupt
// header cannot trigger an arbitrarily large allocation.
const maxFramePayload = 16 << 20

// Frame is one demultiplexed unit of a multiplexed stdout/stderr
// stream. Payload length always equals the length declared in the
// frame's header; a truncated payload surfaces as a ShortReadError,
// never as a shorter Frame.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// ShortReadError reports a connection that ended mid-header or
// mid-payload. It wraps io.ErrUnexpectedEOF so errors.Is works with
// either form.
type ShortReadError struct {
	// Section is "header" or "payload".
	Section string
	// Want is the number of bytes the wire format required.
	Want int
	// Got is the number of bytes actually read before EOF.
	Got int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("stream: short read in demux %s: got %d of %d bytes", e.Section, e.Got, e.Want)
}

func (e *ShortReadError) Unwrap() error { return io.ErrUnexpectedEOF }

// FrameKindError reports a header byte outside the known stream kinds.
type FrameKindError struct {
	Kind byte
}

func (e *FrameKindError) Error() string {
	return fmt.Sprintf("stream: invalid demux stream kind %d", e.Kind)
}

// FrameSizeError reports a header declaring a payload larger than
// maxFramePayload.
type FrameSizeError struct {
	Length uint32
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("stream: demux frame payload %d exceeds maximum %d", e.Length, maxFramePayload)
}

// Demuxer reads demux frames from a multiplexed stream. It is a
// single-pass pull decoder: each Next call consumes exactly one frame
// from the underlying reader. Not safe for concurrent use.
type Demuxer struct {
	reader io.Reader
	failed error
}

// NewDemuxer returns a Demuxer reading frames from r. The caller
// retains ownership of r and is responsible for closing it.
func NewDemuxer(r io.Reader) *Demuxer {
	return &Demuxer{reader: r}
}

// Next reads one frame. Returns io.EOF when the stream ends cleanly on
// a frame boundary. A stream ending mid-header or mid-payload returns
// a *ShortReadError. After any error, subsequent calls return the same
// error: the decoder never resynchronizes on a corrupt stream.
func (d *Demuxer) Next() (Frame, error) {
	if d.failed != nil {
		return Frame{}, d.failed
	}

	var header [frameHeaderLength]byte
	n, err := io.ReadFull(d.reader, header[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return Frame{}, io.EOF
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = &ShortReadError{Section: "header", Want: frameHeaderLength, Got: n}
		}
		d.failed = err
		return Frame{}, err
	}

	if header[0] > byte(Stderr) {
		d.failed = &FrameKindError{Kind: header[0]}
		return Frame{}, d.failed
	}
	length := binary.BigEndian.Uint32(header[4:8])
	if length > maxFramePayload {
		d.failed = &FrameSizeError{Length: length}
		return Frame{}, d.failed
	}

	payload := make([]byte, length)
	if length > 0 {
		n, err := io.ReadFull(d.reader, payload)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = &ShortReadError{Section: "payload", Want: int(length), Got: n}
			}
			d.failed = err
			return Frame{}, err
		}
	}

	return Frame{Kind: FrameKind(header[0]), Payload: payload}, nil
}

// Copy demultiplexes the whole stream, writing stdout frames to
// stdout and stderr frames to stderr, until EOF or the first decode
// error. Stdin frames in the stream are a daemon-side concept and are
// discarded. Returns nil on clean EOF.
func Copy(stdout, stderr io.Writer, source io.Reader) error {
	demuxer := NewDemuxer(source)
	for {
		frame, err := demuxer.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var sink io.Writer
		switch frame.Kind {
		case Stdout:
			sink = stdout
		case Stderr:
			sink = stderr
		default:
			continue
		}
		if _, err := sink.Write(frame.Payload); err != nil {
			return fmt.Errorf("stream: writing %s frame: %w", frame.Kind, err)
		}
	}
}

// WriteFrame writes one frame in the daemon's demux wire format. The
// client uses this when feeding multiplexed stdin over an attach
// connection; tests use it to synthesize daemon output.
func WriteFrame(w io.Writer, frame Frame) error {
	var header [frameHeaderLength]byte
	header[0] = byte(frame.Kind)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(frame.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("stream: writing frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("stream: writing frame payload: %w", err)
		}
	}
	return nil
}
