package wire_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stillwind/opuscast/internal/wire"
)

func TestMarshalLayout(t *testing.T) {
	data, err := wire.Marshal(wire.Packet{
		Sequence:  0x01020304,
		Timestamp: 0x05060708090a0b0c,
		Payload:   []byte{0xAA, 0xBB},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x01, 0x02, 0x03, 0x04, // sequence, big-endian
		0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, // timestamp
		0x00, 0x00, 0x00, 0x02, // payload length
		0xAA, 0xBB,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("layout mismatch:\n got %x\nwant %x", data, want)
	}
}

func TestRoundTrip(t *testing.T) {
	in := wire.Packet{Sequence: 42, Timestamp: 1234567890, Payload: []byte("opus frame bytes")}
	data, err := wire.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := wire.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Sequence != in.Sequence || out.Timestamp != in.Timestamp || !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("round trip: got %+v, want %+v", out, in)
	}
}

func TestLossMarker(t *testing.T) {
	data, err := wire.Marshal(wire.Packet{Sequence: 7, Timestamp: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != wire.HeaderSize {
		t.Fatalf("loss marker datagram %d bytes, want header only %d", len(data), wire.HeaderSize)
	}
	pkt, err := wire.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !pkt.IsLossMarker() {
		t.Error("zero-length payload must parse as loss marker")
	}
}

func TestMarshalRejectsOversizedPayload(t *testing.T) {
	_, err := wire.Marshal(wire.Packet{Payload: make([]byte, wire.MaxPayloadSize+1)})
	if err == nil {
		t.Fatal("expected error for oversized payload, got nil")
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	valid, _ := wire.Marshal(wire.Packet{Sequence: 1, Timestamp: 2, Payload: []byte{1, 2, 3}})

	truncatedHeader := valid[:wire.HeaderSize-1]

	truncatedPayload := append([]byte(nil), valid...)
	truncatedPayload = truncatedPayload[:len(truncatedPayload)-1]

	trailingBytes := append(append([]byte(nil), valid...), 0xFF)

	lyingLength := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(lyingLength[12:16], wire.MaxPayloadSize+1)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated header", truncatedHeader},
		{"truncated payload", truncatedPayload},
		{"trailing bytes", trailingBytes},
		{"length exceeds maximum", lyingLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := wire.Unmarshal(tt.data); err == nil {
				t.Errorf("Unmarshal(%x) succeeded, want error", tt.data)
			}
		})
	}
}
