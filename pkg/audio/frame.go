package audio

// AudioFrame is a single fixed-length frame of PCM flowing through the
// pipeline. A frame is owned by exactly one pipeline stage at a time;
// ownership transfers on handoff (capture → encoder → packetizer → network)
// and the PCM slice must not be retained after handing a frame on.
type AudioFrame struct {
	// PCM holds interleaved int16 samples. Length is Format.FrameSamples().
	PCM []int16

	// Sequence is the per-session frame number, starting at 0 and wrapping
	// at 2^32. Used for ordering and loss detection.
	Sequence uint32

	// Timestamp is the monotonic clock value at the moment of capture, in
	// nanoseconds since session start.
	Timestamp uint64
}

// Clone returns a deep copy of the frame. Used where a stage must keep a
// frame (e.g. concealment source) after handing the original on.
func (f AudioFrame) Clone() AudioFrame {
	pcm := make([]int16, len(f.PCM))
	copy(pcm, f.PCM)
	return AudioFrame{PCM: pcm, Sequence: f.Sequence, Timestamp: f.Timestamp}
}
