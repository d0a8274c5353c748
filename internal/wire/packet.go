// Package wire implements the on-wire packet layout for opuscast streams:
//
//	sequence number   4 bytes  (uint32, wraps at 2^32)
//	capture timestamp 8 bytes  (uint64, monotonic nanoseconds)
//	payload length    4 bytes  (uint32)
//	payload           N bytes  (compressed audio)
//
// All integers are big-endian (network byte order). A payload length of
// zero denotes an explicit loss marker: the sender emits one when encoding
// fails so the receiver sees the sequence gap instead of silently losing
// order.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of the packet header in bytes.
const HeaderSize = 4 + 8 + 4

// MaxPayloadSize bounds the compressed payload of a single packet. It
// comfortably covers the largest Opus frame and keeps every datagram well
// under common MTUs plus tunnelling overhead.
const MaxPayloadSize = 4000

// MaxDatagramSize is the largest datagram a transport must be able to carry.
const MaxDatagramSize = HeaderSize + MaxPayloadSize

// Packet is one framed unit of compressed audio (or a loss marker).
type Packet struct {
	// Sequence is the per-session packet number.
	Sequence uint32

	// Timestamp is the capture timestamp in monotonic nanoseconds.
	Timestamp uint64

	// Payload holds the compressed frame. Empty means loss marker.
	Payload []byte
}

// IsLossMarker reports whether the packet marks a frame the sender could
// not deliver.
func (p Packet) IsLossMarker() bool {
	return len(p.Payload) == 0
}

// Marshal serialises the packet into a fresh datagram buffer.
func Marshal(p Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("wire: payload %d bytes exceeds maximum %d", len(p.Payload), MaxPayloadSize)
	}
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.Sequence)
	binary.BigEndian.PutUint64(buf[4:12], p.Timestamp)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// Unmarshal parses a received datagram. The datagram must be exactly header
// plus the declared payload length; anything else is rejected as malformed.
// The returned payload aliases data.
func Unmarshal(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("wire: datagram %d bytes shorter than header %d", len(data), HeaderSize)
	}
	length := binary.BigEndian.Uint32(data[12:16])
	if length > MaxPayloadSize {
		return Packet{}, fmt.Errorf("wire: declared payload %d bytes exceeds maximum %d", length, MaxPayloadSize)
	}
	if len(data) != HeaderSize+int(length) {
		return Packet{}, fmt.Errorf("wire: datagram %d bytes, header declares %d", len(data), HeaderSize+int(length))
	}
	return Packet{
		Sequence:  binary.BigEndian.Uint32(data[0:4]),
		Timestamp: binary.BigEndian.Uint64(data[4:12]),
		Payload:   data[HeaderSize:],
	}, nil
}
