// Package opus adapts the Opus codec (via layeh.com/gopus) to the
// [audio.Codec] interface.
//
// The encoder runs in restricted low-delay mode at a fixed bitrate, which
// is what a live stream wants: constant, small frames and no lookahead
// beyond the frame itself.
package opus

import (
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/stillwind/opuscast/pkg/audio"
)

// maxPacketBytes bounds a single encoded Opus frame. 20ms at 512kbps is
// 1280 bytes; 4000 leaves generous headroom and matches the reference
// encoder's recommended buffer.
const maxPacketBytes = 4000

// validFrameDurations lists the frame lengths Opus accepts.
var validFrameDurations = []time.Duration{
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
}

// Codec implements [audio.Codec] with an Opus encoder/decoder pair.
// Encode and Decode maintain independent codec state and may be called
// from different goroutines, but neither method may be called concurrently
// with itself.
type Codec struct {
	enc    *gopus.Encoder
	dec    *gopus.Decoder
	format audio.Format
}

// New creates an Opus codec for the given format and bitrate (bits per
// second). Returns an error if the format is not one Opus supports.
func New(format audio.Format, bitrate int) (*Codec, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	if err := ValidateFrameDuration(format.FrameDuration); err != nil {
		return nil, err
	}
	if bitrate <= 0 {
		return nil, fmt.Errorf("opus: bitrate must be positive, got %d", bitrate)
	}

	enc, err := gopus.NewEncoder(format.SampleRate, format.Channels, gopus.RestrictedLowDelay)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	enc.SetBitrate(bitrate)

	dec, err := gopus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}

	return &Codec{enc: enc, dec: dec, format: format}, nil
}

// Encode compresses one PCM frame to an Opus packet.
func (c *Codec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != c.format.FrameSamples() {
		return nil, fmt.Errorf("opus: encode: got %d samples, want %d", len(pcm), c.format.FrameSamples())
	}
	packet, err := c.enc.Encode(pcm, c.format.SamplesPerChannel(), maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return packet, nil
}

// Decode decompresses one Opus packet back to a full PCM frame.
func (c *Codec) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("opus: decode: empty packet")
	}
	pcm, err := c.dec.Decode(packet, c.format.SamplesPerChannel(), false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return pcm, nil
}

// Format implements [audio.Codec].
func (c *Codec) Format() audio.Format {
	return c.format
}

// ValidateFrameDuration reports whether d is a frame length Opus accepts
// (2.5, 5, 10, 20, 40, or 60 ms).
func ValidateFrameDuration(d time.Duration) error {
	for _, valid := range validFrameDurations {
		if d == valid {
			return nil
		}
	}
	return fmt.Errorf("opus: invalid frame duration %v - must be 2.5, 5, 10, 20, 40, or 60 ms", d)
}
