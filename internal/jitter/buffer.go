package jitter

import (
	"fmt"
	"sync"
)

// resetWindowFactor scales the capacity into the sequence distance beyond
// which an arrival is treated as a new stream (sender restart) rather than
// reordering.
const resetWindowFactor = 8

// EnqueueResult classifies the outcome of one insertion.
type EnqueueResult int

const (
	// EnqueueStored: the frame was accepted into the ring.
	EnqueueStored EnqueueResult = iota

	// EnqueueLate: the playback cursor already passed this sequence; the
	// frame was discarded and counted as late loss.
	EnqueueLate

	// EnqueueDuplicate: a frame with this sequence is already buffered.
	EnqueueDuplicate

	// EnqueueDropped: the ring slot holds a frame closer to the playback
	// cursor, so the arriving frame (farther in the future) was discarded.
	EnqueueDropped

	// EnqueueEvicted: the frame was accepted and displaced a buffered
	// frame farther from the playback cursor.
	EnqueueEvicted

	// EnqueueReset: the sequence jumped beyond the reorder window; the
	// buffer restarted the session at this frame.
	EnqueueReset
)

// DequeueResult classifies the outcome of one playback tick.
type DequeueResult int

const (
	// DequeueHit: the expected frame was present and returned.
	DequeueHit DequeueResult = iota

	// DequeueMiss: the expected frame was absent or a tombstone; the
	// cursor advanced and the caller should conceal.
	DequeueMiss

	// DequeueHold: the buffer is not in playing state; the caller should
	// emit pre-fill/recovery output without consuming a frame.
	DequeueHold
)

// Counters accumulates per-session event counts. All fields are
// monotonically increasing for the lifetime of a session.
type Counters struct {
	Arrived    uint64 // enqueue attempts
	Stored     uint64 // accepted into the ring (incl. tombstones)
	Late       uint64 // discarded: cursor already passed (late loss)
	Duplicates uint64 // discarded: sequence already buffered
	Dropped    uint64 // discarded: ring full of nearer frames
	Evicted    uint64 // buffered frames displaced by nearer arrivals
	Tombstones uint64 // explicit loss markers buffered
	Played     uint64 // frames delivered to playback
	Underruns  uint64 // playback ticks with no usable frame
	Resets     uint64 // in-session sequence resets
}

// Snapshot is a point-in-time view of buffer state for telemetry.
type Snapshot struct {
	State     State
	Health    float64
	Occupancy int
	Target    int
	Counters  Counters
}

type slot struct {
	pcm       []int16
	seq       uint32
	occupied  bool
	tombstone bool
}

// Buffer is the jitter buffer: a fixed ring of frames indexed by sequence
// number modulo capacity, plus the state machine and health score.
//
// It is safe for one enqueueing goroutine (network) and one dequeueing
// goroutine (playback) to run concurrently; every critical section is a
// constant number of slot operations, so the playback side never waits on
// an unbounded lock.
type Buffer struct {
	mu sync.Mutex

	slots []slot
	th    Thresholds

	state     State
	health    float64
	started   bool
	nextSeq   uint32 // next sequence playback expects
	occupancy int    // playable (non-tombstone) frames buffered

	consecutiveMisses int
	counters          Counters
}

// New creates a buffer with the given thresholds.
func New(th Thresholds) (*Buffer, error) {
	if th.Capacity < 2 {
		return nil, fmt.Errorf("jitter: capacity must be at least 2, got %d", th.Capacity)
	}
	if th.Min < 1 || th.Min > th.Capacity {
		return nil, fmt.Errorf("jitter: min threshold %d out of range [1,%d]", th.Min, th.Capacity)
	}
	if th.Target < th.Min || th.Target > th.Capacity {
		return nil, fmt.Errorf("jitter: target threshold %d out of range [%d,%d]", th.Target, th.Min, th.Capacity)
	}
	if th.MissLimit < 1 {
		return nil, fmt.Errorf("jitter: miss limit must be at least 1, got %d", th.MissLimit)
	}
	return &Buffer{
		slots:  make([]slot, th.Capacity),
		th:     th,
		state:  StateInitializing,
		health: 100,
	}, nil
}

// Enqueue inserts a decoded frame at the given sequence number. A nil pcm
// buffers a tombstone: the sequence is known lost and playback should not
// wait for it. Safe to call concurrently with Dequeue.
func (b *Buffer) Enqueue(seq uint32, pcm []int16) EnqueueResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counters.Arrived++

	if !b.started {
		b.started = true
		b.nextSeq = seq
		b.store(seq, pcm)
		b.state = NextStateOnArrival(b.state, b.occupancy, b.th)
		return EnqueueStored
	}

	// Signed distance from the playback cursor; wraps correctly at 2^32.
	d := int32(seq - b.nextSeq)

	resetWindow := int32(b.th.Capacity * resetWindowFactor)
	if d < -resetWindow || d > resetWindow {
		// Sequence discontinuity: the sender restarted or the stream is a
		// different session. Start over at this frame.
		b.resetLocked(seq)
		b.store(seq, pcm)
		b.state = NextStateOnArrival(b.state, b.occupancy, b.th)
		return EnqueueReset
	}

	if d < 0 {
		b.counters.Late++
		return EnqueueLate
	}

	s := &b.slots[seq%uint32(len(b.slots))]
	result := EnqueueStored
	if s.occupied {
		if s.seq == seq {
			b.counters.Duplicates++
			return EnqueueDuplicate
		}
		// Ring collision: two live sequences map to the same slot. Keep
		// whichever is closer to the playback cursor.
		dOld := int32(s.seq - b.nextSeq)
		if d >= dOld {
			b.counters.Dropped++
			return EnqueueDropped
		}
		b.counters.Evicted++
		if !s.tombstone {
			b.occupancy--
		}
		result = EnqueueEvicted
	}

	b.store(seq, pcm)
	b.state = NextStateOnArrival(b.state, b.occupancy, b.th)
	return result
}

// store writes into the ring slot for seq. Caller holds the lock and has
// already settled any collision.
func (b *Buffer) store(seq uint32, pcm []int16) {
	s := &b.slots[seq%uint32(len(b.slots))]
	s.seq = seq
	s.pcm = pcm
	s.occupied = true
	s.tombstone = pcm == nil
	b.counters.Stored++
	if s.tombstone {
		b.counters.Tombstones++
	} else {
		b.occupancy++
	}
}

// Dequeue supplies one playback tick. On DequeueHit the returned PCM is
// the expected frame and ownership passes to the caller. On DequeueMiss
// the caller conceals; the expected-sequence cursor has advanced by one
// either way, so a single lost packet can never stall the stream. On
// DequeueHold the buffer is pre-filling or recovering and no frame was
// consumed.
//
// Never blocks beyond its own constant-time critical section.
func (b *Buffer) Dequeue() ([]int16, DequeueResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StatePlaying {
		return nil, DequeueHold
	}

	s := &b.slots[b.nextSeq%uint32(len(b.slots))]
	if s.occupied && s.seq == b.nextSeq && !s.tombstone {
		pcm := s.pcm
		s.occupied = false
		s.pcm = nil
		b.occupancy--
		b.counters.Played++
		b.consecutiveMisses = 0
		b.health = NextHealth(b.health, true)
		b.nextSeq++
		return pcm, DequeueHit
	}

	// Tombstone or absent: either way this sequence will never play.
	if s.occupied && s.seq == b.nextSeq {
		s.occupied = false
	}
	b.counters.Underruns++
	b.consecutiveMisses++
	b.health = NextHealth(b.health, false)
	b.state = NextStateOnTick(b.state, false, b.consecutiveMisses, b.th)
	if b.state == StateRecovering {
		b.consecutiveMisses = 0
	}
	b.nextSeq++
	return nil, DequeueMiss
}

// SetTarget updates the target occupancy threshold (the adaptation knob).
// Clamped to [Min, Capacity].
func (b *Buffer) SetTarget(target int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target < b.th.Min {
		target = b.th.Min
	}
	if target > b.th.Capacity {
		target = b.th.Capacity
	}
	b.th.Target = target
}

// Target returns the current target occupancy threshold.
func (b *Buffer) Target() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.th.Target
}

// State returns the current buffer state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a telemetry view of the buffer.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:     b.state,
		Health:    b.health,
		Occupancy: b.occupancy,
		Target:    b.th.Target,
		Counters:  b.counters,
	}
}

// Reset clears all buffered frames, counters and health and returns the
// machine to initializing, releasing frame memory. Used at session
// teardown; the next stream starts with a clean slate.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked(0)
	b.started = false
	b.state = StateInitializing
	b.counters = Counters{}
}

// resetLocked restarts the session at seq. Caller holds the lock.
func (b *Buffer) resetLocked(seq uint32) {
	for i := range b.slots {
		b.slots[i] = slot{}
	}
	b.occupancy = 0
	b.consecutiveMisses = 0
	b.nextSeq = seq
	b.health = 100
	b.state = StatePreFilling
	b.counters.Resets++
}
