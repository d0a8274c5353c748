// Package jitter implements the receive-side holding area between network
// arrival and playback: a fixed-size ring of decoded frames ordered by
// sequence number, an explicit buffer-state machine, a smoothed health
// score, and the concealment and adaptation policies that decide what to
// play when a frame is missing and how deep the buffer should run.
//
// The state machine and health score are pure functions over (state,
// occupancy, miss history) so they unit-test deterministically without
// clocks or devices; [Buffer] owns the only mutable copy.
package jitter

// State is the buffer lifecycle state for one stream session.
type State int

const (
	// StateInitializing: session created, nothing arrived yet.
	StateInitializing State = iota

	// StatePreFilling: arrivals accepted, playback held back until the
	// buffer reaches its target occupancy.
	StatePreFilling

	// StatePlaying: one frame supplied per playback tick in sequence order.
	StatePlaying

	// StateRecovering: too many consecutive misses; concealment output is
	// served while occupancy re-accumulates toward target.
	StateRecovering
)

// String returns the lowercase state name used in logs and telemetry.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StatePreFilling:
		return "pre_filling"
	case StatePlaying:
		return "playing"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Thresholds are the latency/robustness trade-off knobs of the buffer.
// All counts are in frames.
type Thresholds struct {
	// Capacity is the maximum number of buffered frames (buffer_frames).
	Capacity int

	// Min is the floor for the target occupancy: adaptation and SetTarget
	// never push the target below it (typically Capacity/6).
	Min int

	// Target is the occupancy at which pre_filling and recovering hand
	// over to playing (typically Capacity/3).
	Target int

	// MissLimit is the number of consecutive missing-frame ticks in
	// playing that triggers recovering.
	MissLimit int
}

// health score tuning. Hits pull the score toward 100 with an EMA weight;
// misses subtract a fixed penalty. The asymmetry means one lost packet
// dents the score visibly while recovery is gradual.
const (
	healthGain    = 0.10
	healthPenalty = 15.0
)

// NextHealth returns the health score after one delivery event. The score
// stays in [0,100], is non-decreasing across a run of hits and
// non-increasing across a run of misses.
func NextHealth(score float64, hit bool) float64 {
	if hit {
		score += (100 - score) * healthGain
	} else {
		score -= healthPenalty
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// NextStateOnArrival returns the state after a frame arrives with the given
// resulting occupancy. Arrival is what moves the machine out of
// initializing and completes pre-fill or recovery.
func NextStateOnArrival(s State, occupancy int, th Thresholds) State {
	switch s {
	case StateInitializing:
		if occupancy >= th.Target {
			return StatePlaying
		}
		return StatePreFilling
	case StatePreFilling, StateRecovering:
		if occupancy >= th.Target {
			return StatePlaying
		}
	}
	return s
}

// NextStateOnTick returns the state after one playback tick that hit
// (frame delivered) or missed, given the run of consecutive misses
// including this tick.
func NextStateOnTick(s State, hit bool, consecutiveMisses int, th Thresholds) State {
	if s != StatePlaying {
		return s
	}
	if !hit && consecutiveMisses >= th.MissLimit {
		return StateRecovering
	}
	return s
}
