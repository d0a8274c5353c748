package audio

// Codec compresses fixed-length PCM frames for transport and decompresses
// them back. One session uses exactly one codec with a fixed bitrate and
// frame duration; sender and receiver must be configured identically.
//
// Implementations must be safe to call from a single goroutine per
// direction (one encoder goroutine, one decoder goroutine); they need not
// support concurrent Encode or concurrent Decode calls.
type Codec interface {
	// Encode compresses one PCM frame. len(pcm) must equal
	// Format().FrameSamples().
	Encode(pcm []int16) ([]byte, error)

	// Decode decompresses one packet back to a PCM frame of
	// Format().FrameSamples() interleaved samples.
	Decode(packet []byte) ([]int16, error)

	// Format reports the fixed format this codec was configured with.
	Format() Format
}
