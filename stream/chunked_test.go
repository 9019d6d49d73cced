// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDechunkSingleChunk(t *testing.T) {
	dechunker := NewDechunker(strings.NewReader("4\r\ntest\r\n0\r\n\r\n"))
	data, err := io.ReadAll(dechunker)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "test" {
		t.Errorf("decoded %q, want %q", data, "test")
	}
}

func TestDechunkMultipleChunks(t *testing.T) {
	input := "5\r\nhello\r\n1\r\n \r\n6\r\nworld!\r\n0\r\n\r\n"
	data, err := io.ReadAll(NewDechunker(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world!" {
		t.Errorf("decoded %q", data)
	}
}

func TestDechunkHexSizesAndExtensions(t *testing.T) {
	payload := strings.Repeat("x", 0x1a)
	input := "1A;chunk-ext=ignored\r\n" + payload + "\r\n0\r\n\r\n"
	data, err := io.ReadAll(NewDechunker(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != payload {
		t.Errorf("decoded %d bytes, want %d", len(data), len(payload))
	}
}

func TestDechunkTrailerFields(t *testing.T) {
	input := "3\r\nabc\r\n0\r\nExpires: never\r\n\r\n"
	data, err := io.ReadAll(NewDechunker(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("decoded %q", data)
	}
}

func TestDechunkInvalidSizeLine(t *testing.T) {
	_, err := io.ReadAll(NewDechunker(strings.NewReader("zz\r\ndata\r\n")))
	var sizeErr *ChunkSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("err = %v, want *ChunkSizeError", err)
	}
}

func TestDechunkMissingTerminator(t *testing.T) {
	// Payload not followed by CRLF.
	_, err := io.ReadAll(NewDechunker(strings.NewReader("4\r\ntestXX0\r\n\r\n")))
	var trailerErr *TrailerError
	if !errors.As(err, &trailerErr) {
		t.Fatalf("err = %v, want *TrailerError", err)
	}
}

func TestDechunkTruncatedPayload(t *testing.T) {
	// Declares 8 bytes, stream ends after 4.
	_, err := io.ReadAll(NewDechunker(strings.NewReader("8\r\nhalf")))
	var shortRead *ShortReadError
	if !errors.As(err, &shortRead) {
		t.Fatalf("err = %v, want *ShortReadError", err)
	}
}

func TestDechunkTruncatedTrailer(t *testing.T) {
	_, err := io.ReadAll(NewDechunker(strings.NewReader("4\r\ntest\r\n0\r\n")))
	var trailerErr *TrailerError
	if !errors.As(err, &trailerErr) {
		t.Fatalf("err = %v, want *TrailerError", err)
	}
}

func TestDechunkErrorIsSticky(t *testing.T) {
	dechunker := NewDechunker(strings.NewReader("nothex\r\n"))
	buffer := make([]byte, 16)
	_, err1 := dechunker.Read(buffer)
	_, err2 := dechunker.Read(buffer)
	if err1 == nil || err2 != err1 {
		t.Errorf("errors not sticky: first %v, second %v", err1, err2)
	}
}

func TestProgressDecoder(t *testing.T) {
	input := `{"stream":"Step 1/3 : FROM alpine\n"}
{"status":"Downloading","id":"abc123","progressDetail":{"current":10,"total":100}}
{"stream":"done\n"}
`
	decoder := NewProgressDecoder(strings.NewReader(input))

	first, err := decoder.Next()
	if err != nil || first.Stream != "Step 1/3 : FROM alpine\n" {
		t.Fatalf("first = %+v, err %v", first, err)
	}
	second, err := decoder.Next()
	if err != nil || second.Status != "Downloading" || second.ProgressDetail.Total != 100 {
		t.Fatalf("second = %+v, err %v", second, err)
	}
	if _, err := decoder.Next(); err != nil {
		t.Fatalf("third: %v", err)
	}
	if _, err := decoder.Next(); err != io.EOF {
		t.Errorf("end = %v, want io.EOF", err)
	}
}

func TestProgressDecoderDaemonError(t *testing.T) {
	decoder := NewProgressDecoder(strings.NewReader(`{"error":"no basic auth credentials"}`))
	_, err := decoder.Next()
	var messageErr *JSONMessageError
	if !errors.As(err, &messageErr) {
		t.Fatalf("err = %v, want *JSONMessageError", err)
	}
	if messageErr.Message != "no basic auth credentials" {
		t.Errorf("message = %q", messageErr.Message)
	}
}
