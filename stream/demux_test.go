// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestDemuxRoundtrip(t *testing.T) {
	// Encoding a sequence of frames then decoding must reproduce the
	// exact sequence and order, including empty payloads.
	frames := []Frame{
		{Kind: Stdout, Payload: []byte("first line\n")},
		{Kind: Stderr, Payload: []byte("warning: something\n")},
		{Kind: Stdout, Payload: nil},
		{Kind: Stdin, Payload: []byte("typed input")},
		{Kind: Stdout, Payload: bytes.Repeat([]byte{0xab}, 70000)},
	}

	var wire bytes.Buffer
	for _, frame := range frames {
		if err := WriteFrame(&wire, frame); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	demuxer := NewDemuxer(&wire)
	for i, want := range frames {
		got, err := demuxer.Next()
		if err != nil {
			t.Fatalf("Next frame %d: %v", i, err)
		}
		if got.Kind != want.Kind {
			t.Errorf("frame %d kind = %v, want %v", i, got.Kind, want.Kind)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("frame %d payload mismatch (%d vs %d bytes)", i, len(got.Payload), len(want.Payload))
		}
	}
	if _, err := demuxer.Next(); err != io.EOF {
		t.Errorf("after final frame: err = %v, want io.EOF", err)
	}
}

func TestDemuxShortPayload(t *testing.T) {
	// Header declares 10 payload bytes; connection closes after 5.
	var wire bytes.Buffer
	wire.Write([]byte{byte(Stdout), 0, 0, 0, 0, 0, 0, 10})
	wire.Write([]byte("12345"))

	demuxer := NewDemuxer(&wire)
	_, err := demuxer.Next()

	var shortRead *ShortReadError
	if !errors.As(err, &shortRead) {
		t.Fatalf("err = %v, want *ShortReadError", err)
	}
	if shortRead.Section != "payload" || shortRead.Want != 10 || shortRead.Got != 5 {
		t.Errorf("ShortReadError = %+v, want payload 5/10", shortRead)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ShortReadError does not unwrap to io.ErrUnexpectedEOF")
	}

	// The decoder stays failed; it never resynchronizes.
	if _, err2 := demuxer.Next(); err2 != err {
		t.Errorf("second Next = %v, want sticky %v", err2, err)
	}
}

func TestDemuxShortHeader(t *testing.T) {
	demuxer := NewDemuxer(bytes.NewReader([]byte{byte(Stderr), 0, 0}))
	_, err := demuxer.Next()

	var shortRead *ShortReadError
	if !errors.As(err, &shortRead) {
		t.Fatalf("err = %v, want *ShortReadError", err)
	}
	if shortRead.Section != "header" || shortRead.Got != 3 {
		t.Errorf("ShortReadError = %+v, want header 3/8", shortRead)
	}
}

func TestDemuxInvalidKind(t *testing.T) {
	demuxer := NewDemuxer(bytes.NewReader([]byte{9, 0, 0, 0, 0, 0, 0, 0}))
	_, err := demuxer.Next()

	var kindErr *FrameKindError
	if !errors.As(err, &kindErr) {
		t.Fatalf("err = %v, want *FrameKindError", err)
	}
	if kindErr.Kind != 9 {
		t.Errorf("kind = %d, want 9", kindErr.Kind)
	}
}

func TestDemuxOversizedFrame(t *testing.T) {
	header := []byte{byte(Stdout), 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
	demuxer := NewDemuxer(bytes.NewReader(header))
	_, err := demuxer.Next()

	var sizeErr *FrameSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("err = %v, want *FrameSizeError", err)
	}
}

func TestDemuxZeroLengthFrame(t *testing.T) {
	var wire bytes.Buffer
	WriteFrame(&wire, Frame{Kind: Stdout})
	WriteFrame(&wire, Frame{Kind: Stderr, Payload: []byte("after-empty")})

	demuxer := NewDemuxer(&wire)
	frame, err := demuxer.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Kind != Stdout || len(frame.Payload) != 0 {
		t.Errorf("empty frame = %+v", frame)
	}
	frame, err = demuxer.Next()
	if err != nil || !bytes.Equal(frame.Payload, []byte("after-empty")) {
		t.Errorf("frame after empty = %+v, err %v", frame, err)
	}
}

func TestCopySplitsStreams(t *testing.T) {
	var wire bytes.Buffer
	WriteFrame(&wire, Frame{Kind: Stdout, Payload: []byte("out1")})
	WriteFrame(&wire, Frame{Kind: Stderr, Payload: []byte("err1")})
	WriteFrame(&wire, Frame{Kind: Stdout, Payload: []byte("out2")})

	var stdout, stderr bytes.Buffer
	if err := Copy(&stdout, &stderr, &wire); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if stdout.String() != "out1out2" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.String() != "err1" {
		t.Errorf("stderr = %q", stderr.String())
	}
}
