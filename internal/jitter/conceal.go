package jitter

import (
	"fmt"

	"github.com/stillwind/opuscast/pkg/audio"
)

// ConcealMode selects what the playback side emits for a missing frame.
type ConcealMode int

const (
	// ConcealFade repeats the last played frame with its gain halved for
	// every consecutive miss, decaying toward silence.
	ConcealFade ConcealMode = iota

	// ConcealRepeat repeats the last played frame at full gain.
	ConcealRepeat

	// ConcealSilence emits zero samples.
	ConcealSilence
)

// String returns the mode name as it appears in configuration.
func (m ConcealMode) String() string {
	switch m {
	case ConcealFade:
		return "fade"
	case ConcealRepeat:
		return "repeat"
	case ConcealSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// ParseConcealMode parses the configuration spelling of a mode.
func ParseConcealMode(s string) (ConcealMode, error) {
	switch s {
	case "fade":
		return ConcealFade, nil
	case "repeat":
		return ConcealRepeat, nil
	case "silence":
		return ConcealSilence, nil
	default:
		return 0, fmt.Errorf("jitter: unknown concealment mode %q (want fade, repeat or silence)", s)
	}
}

// Concealer produces substitute PCM for missing frames. Not safe for
// concurrent use; it lives on the playback goroutine.
type Concealer struct {
	mode ConcealMode
	last []int16
	run  int // consecutive concealed frames since the last hit
}

// NewConcealer creates a concealer for frames of frameSamples total
// samples (all channels interleaved).
func NewConcealer(mode ConcealMode, frameSamples int) *Concealer {
	return &Concealer{
		mode: mode,
		last: make([]int16, frameSamples),
	}
}

// NoteHit records a successfully played frame as the fade/repeat source
// and resets the fade depth. The frame is copied; the caller keeps
// ownership of pcm.
func (c *Concealer) NoteHit(pcm []int16) {
	copy(c.last, pcm)
	c.run = 0
}

// Conceal fills out with substitute audio for one missing frame. Each
// consecutive call without an intervening NoteHit fades deeper in fade
// mode; repeat and silence are stateless.
func (c *Concealer) Conceal(out []int16) {
	c.run++
	switch c.mode {
	case ConcealRepeat:
		copy(out, c.last)
	case ConcealSilence:
		clear(out)
	default:
		gain := 1.0
		for i := 0; i < c.run; i++ {
			gain /= 2
		}
		if gain < 1.0/256 {
			clear(out)
			return
		}
		copy(out, c.last)
		audio.Scale(out, gain)
	}
}

// Reset clears the fade source and depth, as at session start. Concealed
// output after a reset is silence until the next NoteHit.
func (c *Concealer) Reset() {
	clear(c.last)
	c.run = 0
}

// Run returns the number of consecutive concealed frames since the last
// played frame.
func (c *Concealer) Run() int {
	return c.run
}
