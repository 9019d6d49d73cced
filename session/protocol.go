// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/stevedore-project/stevedore/lib/codec"
)

// Message type constants for the control-stream wire format. Each
// message is a 5-byte header (1 byte type + 4 byte big-endian payload
// length) followed by a CBOR payload.
const (
	// messageInvoke starts an invocation. Daemon→client only. Payload
	// is invokePayload: the invocation id, the service method name,
	// and optional method arguments.
	messageInvoke byte = 0x01

	// messageData carries one chunk of an invocation's byte stream.
	// Bidirectional. Payload is dataPayload.
	messageData byte = 0x02

	// messageClose ends an invocation's stream cleanly. Bidirectional.
	// Payload is closePayload.
	messageClose byte = 0x03

	// messageError fails a single invocation. Bidirectional. Payload
	// is errorPayload. Scoped to the invocation id it names; the
	// session itself stays up.
	messageError byte = 0x04
)

// messageHeaderLength is the fixed control header size: 1 byte type +
// 4 bytes payload length.
const messageHeaderLength = 5

// maxMessagePayload bounds one control message at 4 MB. Data chunks
// are far smaller; the bound keeps a corrupt header from triggering an
// unbounded allocation.
const maxMessagePayload = 4 << 20

// message is one framed control-stream message.
type message struct {
	Type    byte
	Payload []byte
}

// invokePayload is the body of a messageInvoke.
type invokePayload struct {
	ID     uint32           `cbor:"id"`
	Method string           `cbor:"method"`
	Args   codec.RawMessage `cbor:"args,omitempty"`
}

// dataPayload is the body of a messageData.
type dataPayload struct {
	ID   uint32 `cbor:"id"`
	Data []byte `cbor:"data"`
}

// closePayload is the body of a messageClose.
type closePayload struct {
	ID uint32 `cbor:"id"`
}

// errorPayload is the body of a messageError.
type errorPayload struct {
	ID      uint32 `cbor:"id"`
	Message string `cbor:"message"`
}

// ProtocolError reports a malformed control-stream message: a
// truncated frame, an oversized declared length, or an undecodable
// payload. Fatal for the control stream; the session never
// resynchronizes on corrupt framing.
type ProtocolError struct {
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: protocol error: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("session: protocol error: %s", e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// writeMessage writes one framed message. Callers serialize access;
// the session takes its write lock before calling.
func writeMessage(w io.Writer, m message) error {
	var header [messageHeaderLength]byte
	header[0] = m.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(m.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("session: writing message header: %w", err)
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return fmt.Errorf("session: writing message payload: %w", err)
		}
	}
	return nil
}

// readMessage reads one framed message. Returns io.EOF only on a
// clean end of stream at a message boundary; truncation mid-frame is a
// ProtocolError.
func readMessage(r io.Reader) (message, error) {
	var header [messageHeaderLength]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return message{}, io.EOF
		}
		return message{}, &ProtocolError{Detail: "truncated message header", Err: io.ErrUnexpectedEOF}
	}

	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxMessagePayload {
		return message{}, &ProtocolError{Detail: fmt.Sprintf("message payload %d exceeds maximum %d", payloadLength, maxMessagePayload)}
	}

	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return message{}, &ProtocolError{Detail: "truncated message payload", Err: io.ErrUnexpectedEOF}
		}
	}
	return message{Type: header[0], Payload: payload}, nil
}

// encodeMessage builds a framed message with a CBOR payload.
func encodeMessage(messageType byte, payload any) (message, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return message{}, fmt.Errorf("session: encoding message payload: %w", err)
	}
	return message{Type: messageType, Payload: encoded}, nil
}
