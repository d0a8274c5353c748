// Package mock provides in-memory implementations of [audio.Codec],
// [audio.CaptureDevice], and [audio.PlaybackDevice] for unit tests.
//
// All mocks are safe for concurrent use. They record calls so tests can
// assert on counts and arguments, and expose exported fields that control
// return values.
//
// Typical usage:
//
//	codec := &mock.Codec{Fmt: format}
//	packet, _ := codec.Encode(pcm)     // length-prefixed copy of pcm
//	back, _ := codec.Decode(packet)    // round-trips exactly
package mock

import (
	"context"
	"sync"

	"github.com/stillwind/opuscast/pkg/audio"
)

// ─── Codec ───────────────────────────────────────────────────────────────────

// Codec is a pass-through [audio.Codec]: Encode serialises PCM to bytes and
// Decode restores it, so pipeline tests see exact sample round trips
// without a real compressor.
type Codec struct {
	mu sync.Mutex

	// Fmt is returned by Format.
	Fmt audio.Format

	// EncodeErr, when non-nil, is returned by every Encode call.
	EncodeErr error

	// DecodeErr, when non-nil, is returned by every Decode call.
	DecodeErr error

	// EncodeCalls counts Encode invocations.
	EncodeCalls int

	// DecodeCalls counts Decode invocations.
	DecodeCalls int
}

// Encode implements [audio.Codec]. Returns the PCM as little-endian bytes.
func (c *Codec) Encode(pcm []int16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EncodeCalls++
	if c.EncodeErr != nil {
		return nil, c.EncodeErr
	}
	return audio.Int16sToBytes(pcm), nil
}

// Decode implements [audio.Codec]. Inverts Encode.
func (c *Codec) Decode(packet []byte) ([]int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DecodeCalls++
	if c.DecodeErr != nil {
		return nil, c.DecodeErr
	}
	return audio.BytesToInt16s(packet), nil
}

// Format implements [audio.Codec].
func (c *Codec) Format() audio.Format {
	return c.Fmt
}

// ─── CaptureDevice ───────────────────────────────────────────────────────────

// Capture is a scripted [audio.CaptureDevice]. Each ReadFrame call pops the
// next frame from Frames; once exhausted, ReadFrame blocks until ctx is
// cancelled (mimicking a silent device).
type Capture struct {
	mu sync.Mutex

	// Fmt is returned by Format.
	Fmt audio.Format

	// Frames are handed out in order, one per ReadFrame call.
	Frames [][]int16

	// ReadCalls counts ReadFrame invocations.
	ReadCalls int

	// CloseCalls counts Close invocations.
	CloseCalls int

	next int
}

// ReadFrame implements [audio.CaptureDevice].
func (c *Capture) ReadFrame(ctx context.Context) ([]int16, error) {
	c.mu.Lock()
	c.ReadCalls++
	if c.next < len(c.Frames) {
		frame := c.Frames[c.next]
		c.next++
		c.mu.Unlock()
		return frame, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

// Format implements [audio.CaptureDevice].
func (c *Capture) Format() audio.Format {
	return c.Fmt
}

// Close implements [audio.CaptureDevice].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	return nil
}

// ─── PlaybackDevice ──────────────────────────────────────────────────────────

// Playback is an [audio.PlaybackDevice] driven manually by the test: call
// [Playback.Tick] to simulate one device period. Frames pulled from the
// pipeline are recorded in Played.
type Playback struct {
	mu sync.Mutex

	// Fmt is returned by Format.
	Fmt audio.Format

	// Played records every frame the pull callback produced, in order.
	Played [][]int16

	// CloseCalls counts Close invocations.
	CloseCalls int

	pull func(out []int16)
}

// Start implements [audio.PlaybackDevice]. It registers the pull callback
// and blocks until ctx is cancelled; the test drives periods via Tick.
func (p *Playback) Start(ctx context.Context, pull func(out []int16)) error {
	p.mu.Lock()
	p.pull = pull
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// Tick simulates one playback period: it invokes the registered pull
// callback with a zeroed frame and records the result. Returns false if
// Start has not been called yet.
func (p *Playback) Tick() bool {
	p.mu.Lock()
	pull := p.pull
	p.mu.Unlock()
	if pull == nil {
		return false
	}
	out := make([]int16, p.Fmt.FrameSamples())
	pull(out)
	p.mu.Lock()
	p.Played = append(p.Played, out)
	p.mu.Unlock()
	return true
}

// Format implements [audio.PlaybackDevice].
func (p *Playback) Format() audio.Format {
	return p.Fmt
}

// Close implements [audio.PlaybackDevice].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	return nil
}
