// Package synth provides synthetic audio devices so the opuscast binary can
// run end-to-end without sound hardware: a sine-tone capture source and a
// discarding playback sink, both paced by a wall-clock ticker at the frame
// duration.
//
// Real hardware adapters implement the same [audio.CaptureDevice] and
// [audio.PlaybackDevice] interfaces; the pipelines cannot tell the
// difference.
package synth

import (
	"context"
	"math"
	"time"

	"github.com/stillwind/opuscast/pkg/audio"
)

// ToneCapture is an [audio.CaptureDevice] producing a continuous sine tone.
// ReadFrame paces itself with a ticker so frames arrive at the configured
// frame duration, like a real capture callback would.
type ToneCapture struct {
	format audio.Format
	freq   float64
	ticker *time.Ticker
	phase  float64
}

// NewToneCapture creates a tone source at the given frequency in Hz.
func NewToneCapture(format audio.Format, freq float64) *ToneCapture {
	return &ToneCapture{
		format: format,
		freq:   freq,
		ticker: time.NewTicker(format.FrameDuration),
	}
}

// ReadFrame implements [audio.CaptureDevice]. Blocks until the next frame
// period elapses, then returns one frame of the tone.
func (t *ToneCapture) ReadFrame(ctx context.Context) ([]int16, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.ticker.C:
	}

	samples := t.format.SamplesPerChannel()
	pcm := make([]int16, t.format.FrameSamples())
	step := 2 * math.Pi * t.freq / float64(t.format.SampleRate)
	for i := 0; i < samples; i++ {
		s := int16(math.Sin(t.phase) * 0.25 * 32767)
		t.phase += step
		for ch := 0; ch < t.format.Channels; ch++ {
			pcm[i*t.format.Channels+ch] = s
		}
	}
	// Keep the phase bounded.
	t.phase = math.Mod(t.phase, 2*math.Pi)
	return pcm, nil
}

// Format implements [audio.CaptureDevice].
func (t *ToneCapture) Format() audio.Format {
	return t.format
}

// Close implements [audio.CaptureDevice].
func (t *ToneCapture) Close() error {
	t.ticker.Stop()
	return nil
}

// NullPlayback is an [audio.PlaybackDevice] that pulls one frame per period
// and discards it. Useful for soak-testing the receive path on machines
// with no audio output.
type NullPlayback struct {
	format audio.Format
}

// NewNullPlayback creates a discarding playback sink.
func NewNullPlayback(format audio.Format) *NullPlayback {
	return &NullPlayback{format: format}
}

// Start implements [audio.PlaybackDevice]. Invokes pull once per frame
// duration until ctx is cancelled.
func (n *NullPlayback) Start(ctx context.Context, pull func(out []int16)) error {
	ticker := time.NewTicker(n.format.FrameDuration)
	defer ticker.Stop()

	buf := make([]int16, n.format.FrameSamples())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			clear(buf)
			pull(buf)
		}
	}
}

// Format implements [audio.PlaybackDevice].
func (n *NullPlayback) Format() audio.Format {
	return n.format
}

// Close implements [audio.PlaybackDevice].
func (n *NullPlayback) Close() error {
	return nil
}
