// Package audio defines the types and interfaces shared by the opuscast
// streaming pipelines.
//
// The three primary abstractions are:
//
//   - [AudioFrame] — one fixed-length chunk of PCM, the atomic unit that
//     flows capture → encoder → network → jitter buffer → playback.
//   - [Codec] — encodes a PCM frame to a compressed packet and back.
//   - [CaptureDevice] / [PlaybackDevice] — pull-based device endpoints that
//     produce or consume exactly one frame per period.
//
// Implementations of the device interfaces are provided by adapter packages
// (audio/synth for hardware-free synthetic devices, audio/mock for tests).
// The interfaces are intentionally narrow so the pipelines stay decoupled
// from platform audio APIs.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate, channel count, and frame duration of a
// stream. Sender and receiver must agree on all three; a mismatch is a
// configuration error, not something negotiated per frame.
type Format struct {
	// SampleRate in Hz (e.g. 48000).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// FrameDuration is the length of one frame (e.g. 20ms).
	FrameDuration time.Duration
}

// SamplesPerChannel returns the number of samples per channel in one frame
// (e.g. 960 for 20ms at 48kHz).
func (f Format) SamplesPerChannel() int {
	return int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
}

// FrameSamples returns the total number of interleaved samples in one frame
// across all channels.
func (f Format) FrameSamples() int {
	return f.SamplesPerChannel() * f.Channels
}

// Validate reports whether the format is internally coherent.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("audio: channels must be 1 or 2, got %d", f.Channels)
	}
	if f.FrameDuration <= 0 {
		return fmt.Errorf("audio: frame duration must be positive, got %v", f.FrameDuration)
	}
	if f.SamplesPerChannel() == 0 {
		return fmt.Errorf("audio: frame duration %v too short for sample rate %d", f.FrameDuration, f.SampleRate)
	}
	return nil
}

// String returns a human-readable description, e.g. "48000Hz stereo 20ms".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	}
	return fmt.Sprintf("%dHz %s %v", f.SampleRate, ch, f.FrameDuration)
}
