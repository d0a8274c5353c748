package jitter

// AdaptConfig bounds and tunes the target-occupancy adaptation. Loss rates
// are fractions in [0,1] over one observation interval.
type AdaptConfig struct {
	// Floor and Ceiling bound the target occupancy, in frames.
	Floor   int
	Ceiling int

	// RaiseAbove: interval loss rate above which the target grows.
	RaiseAbove float64

	// LowerBelow: interval loss rate below which the interval counts as
	// stable. Must be below RaiseAbove; the gap is the hysteresis band
	// that keeps the target from oscillating.
	LowerBelow float64

	// StableIntervals: consecutive stable intervals required before the
	// target shrinks by one frame.
	StableIntervals int
}

// Adapter moves the buffer's target occupancy up quickly under loss and
// back down slowly once the network stays calm. One instance per session,
// driven from the receiver's stats interval; not safe for concurrent use.
type Adapter struct {
	cfg    AdaptConfig
	stable int
}

// NewAdapter creates an adapter; zero-value fields of cfg get no defaults,
// the config layer validates them.
func NewAdapter(cfg AdaptConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

// Next returns the target occupancy to apply after observing lossRate
// (missing or underrun frames as a fraction of playback ticks) over one
// interval.
func (a *Adapter) Next(target int, lossRate float64) int {
	switch {
	case lossRate > a.cfg.RaiseAbove:
		a.stable = 0
		if target < a.cfg.Ceiling {
			target++
		}
	case lossRate < a.cfg.LowerBelow:
		a.stable++
		if a.stable >= a.cfg.StableIntervals {
			a.stable = 0
			if target > a.cfg.Floor {
				target--
			}
		}
	default:
		// Inside the hysteresis band: hold, and restart the stability count.
		a.stable = 0
	}
	return target
}
