// Copyright 2026 The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// samplePacket is representative of a file-sync wire type (cbor tags:
// never serialized as JSON).
type samplePacket struct {
	Kind uint8  `cbor:"kind"`
	ID   uint32 `cbor:"id"`
	Data []byte `cbor:"data,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := samplePacket{Kind: 3, ID: 17, Data: []byte("payload bytes")}

	encoded, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded samplePacket
	if err := Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Kind != original.Kind || decoded.ID != original.ID || !bytes.Equal(decoded.Data, original.Data) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	value := map[string]int{"zulu": 1, "alpha": 2, "mike": 3}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("same value produced different encodings:\n%x\n%x", first, second)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// Encode a superset of samplePacket's fields; decoding must not fail.
	superset := map[string]any{"kind": 1, "id": 2, "data": []byte("x"), "future": "field"}
	encoded, err := Marshal(superset)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded samplePacket
	if err := Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Kind != 1 || decoded.ID != 2 {
		t.Errorf("decoded = %+v, want kind=1 id=2", decoded)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)

	packets := []samplePacket{
		{Kind: 0, ID: 0},
		{Kind: 2, ID: 1, Data: []byte("chunk")},
		{Kind: 4, ID: 1},
	}
	for _, packet := range packets {
		if err := encoder.Encode(packet); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range packets {
		var got samplePacket
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode packet %d: %v", i, err)
		}
		if got.Kind != want.Kind || got.ID != want.ID || !bytes.Equal(got.Data, want.Data) {
			t.Errorf("packet %d = %+v, want %+v", i, got, want)
		}
	}
}
