package audio

// Int16sToBytes converts interleaved int16 PCM samples to little-endian
// bytes, the layout used at the device boundary.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian PCM bytes back to int16 samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// Scale multiplies every sample by gain in place, clamping to the int16
// range. Used by the concealment policy to fade frames toward silence.
func Scale(pcm []int16, gain float64) {
	for i, s := range pcm {
		v := int32(float64(s) * gain)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		pcm[i] = int16(v)
	}
}
