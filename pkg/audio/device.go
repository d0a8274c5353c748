package audio

import "context"

// CaptureDevice is the pull-based input endpoint. The sender pipeline calls
// ReadFrame once per capture period; the device blocks until the next frame
// of Format().FrameSamples() samples is available.
//
// Device selection (by name or platform identifier) is a configuration
// concern handled by the adapter packages, not part of this interface.
type CaptureDevice interface {
	// ReadFrame blocks until one full frame of PCM has been captured and
	// returns it. The returned slice is owned by the caller. Returns the
	// context's error once ctx is cancelled.
	ReadFrame(ctx context.Context) ([]int16, error)

	// Format reports the fixed capture format.
	Format() Format

	// Close releases the device.
	Close() error
}

// PlaybackDevice is the pull-driven output endpoint. The device invokes the
// registered callback once per playback period to obtain the next frame;
// the callback must fill out within the device's deadline and never block.
type PlaybackDevice interface {
	// Start begins periodic playback. pull is invoked once per frame period
	// with a zeroed buffer of Format().FrameSamples() samples to fill.
	// Runs until ctx is cancelled or Close is called.
	Start(ctx context.Context, pull func(out []int16)) error

	// Format reports the fixed playback format.
	Format() Format

	// Close stops playback and releases the device.
	Close() error
}
