// Package receiver implements the receive pipeline: pull datagrams off
// the transport, depacketize and decode them into the jitter buffer, and
// serve the playback device one frame per period with concealment for
// anything missing. A session begins with the first packet and ends after
// a configurable idle gap; sequence, health and statistics state is
// per-session.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stillwind/opuscast/internal/jitter"
	"github.com/stillwind/opuscast/internal/observe"
	"github.com/stillwind/opuscast/internal/transport"
	"github.com/stillwind/opuscast/internal/wire"
	"github.com/stillwind/opuscast/pkg/audio"
)

// receivePoll bounds a single blocking Receive call so idle-session
// detection and shutdown stay responsive.
const receivePoll = 100 * time.Millisecond

// CSVHeader is the column layout of the receiver's statistics CSV.
var CSVHeader = []string{
	"timestamp", "state", "health", "occupancy", "target",
	"packets_received", "packets_late", "packets_duplicate",
	"frames_played", "underruns", "loss_rate", "jitter_ms",
}

// Config wires a Receiver together. Transport, Codec and Playback are
// required; telemetry fields are optional.
type Config struct {
	Transport transport.Transport
	Codec     audio.Codec
	Playback  audio.PlaybackDevice

	// Thresholds configures the jitter buffer.
	Thresholds jitter.Thresholds

	// Conceal selects the concealment policy for missing frames.
	Conceal jitter.ConcealMode

	// Adapt, when non-nil, enables target-occupancy adaptation with these
	// bounds.
	Adapt *jitter.AdaptConfig

	// IdleTimeout destroys the session after this long without packets.
	IdleTimeout time.Duration

	// StatsInterval is how many frame periods pass between statistics
	// reports (and adaptation steps). Zero disables both.
	StatsInterval int

	// Metrics receives instrument updates. Nil disables.
	Metrics *observe.Metrics

	// CSV receives one row per statistics report. Nil disables.
	CSV *observe.CSVSink

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Receiver runs the receive → buffer → decode → playback pipeline.
type Receiver struct {
	transport transport.Transport
	codec     audio.Codec
	playback  audio.PlaybackDevice
	buf       *jitter.Buffer
	conceal   *jitter.Concealer
	adapter   *jitter.Adapter
	metrics   *observe.Metrics
	csv       *observe.CSVSink
	log       *slog.Logger

	idleTimeout   time.Duration
	statsInterval time.Duration

	mu         sync.Mutex
	session    bool
	lastPacket time.Time
	jitterMS   float64 // RFC 3550 style smoothed interarrival jitter

	// set at session teardown, consumed by the playback goroutine
	concealStale atomic.Bool

	// interarrival history for the jitter estimate, receive goroutine only
	prevArrival time.Time
	prevSent    uint64
}

// New validates the wiring and builds the jitter buffer. The playback
// format must match the codec format; the device clock is the frame clock.
func New(cfg Config) (*Receiver, error) {
	if cfg.Transport == nil || cfg.Codec == nil || cfg.Playback == nil {
		return nil, errors.New("receiver: transport, codec and playback are all required")
	}
	if got, want := cfg.Playback.Format(), cfg.Codec.Format(); got != want {
		return nil, fmt.Errorf("receiver: playback format %s does not match codec format %s", got, want)
	}
	if cfg.IdleTimeout <= 0 {
		return nil, fmt.Errorf("receiver: idle timeout %s must be positive", cfg.IdleTimeout)
	}

	buf, err := jitter.New(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := &Receiver{
		transport:   cfg.Transport,
		codec:       cfg.Codec,
		playback:    cfg.Playback,
		buf:         buf,
		conceal:     jitter.NewConcealer(cfg.Conceal, cfg.Codec.Format().FrameSamples()),
		metrics:     cfg.Metrics,
		csv:         cfg.CSV,
		log:         log,
		idleTimeout: cfg.IdleTimeout,
	}
	if cfg.Adapt != nil {
		r.adapter = jitter.NewAdapter(*cfg.Adapt)
	}
	if cfg.StatsInterval > 0 {
		r.statsInterval = time.Duration(cfg.StatsInterval) * cfg.Codec.Format().FrameDuration
	}
	return r, nil
}

// Run streams until ctx is cancelled or the transport closes. A clean
// cancellation returns nil.
func (r *Receiver) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.receiveLoop(ctx) })

	g.Go(func() error {
		err := r.playback.Start(ctx, r.pull)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("receiver: playback: %w", err)
		}
		return nil
	})

	if r.statsInterval > 0 {
		g.Go(func() error { return r.statsLoop(ctx) })
	}

	return g.Wait()
}

// receiveLoop pulls datagrams until shutdown, feeding the jitter buffer
// and maintaining the session lifecycle.
func (r *Receiver) receiveLoop(ctx context.Context) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, receivePoll)
		data, err := r.transport.Receive(rctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch {
			case errors.Is(err, transport.ErrTimeout):
				r.checkIdle(ctx)
				continue
			case errors.Is(err, transport.ErrClosed):
				return nil
			default:
				r.log.Warn("receive failed", "error", err)
				continue
			}
		}

		r.handleDatagram(ctx, data)
	}
}

// handleDatagram parses, decodes and enqueues one datagram.
func (r *Receiver) handleDatagram(ctx context.Context, data []byte) {
	now := time.Now()

	pkt, err := wire.Unmarshal(data)
	if err != nil {
		r.log.Debug("malformed datagram dropped", "bytes", len(data), "error", err)
		if r.metrics != nil {
			r.metrics.RecordDiscard(ctx, "malformed")
		}
		return
	}

	r.touchSession(ctx, now)
	r.updateJitter(now, pkt.Timestamp)
	if r.metrics != nil {
		r.metrics.PacketsReceived.Add(ctx, 1)
	}

	var pcm []int16
	if pkt.IsLossMarker() {
		// Tombstone keeps the sequence gap explicit for playback.
		if r.metrics != nil {
			r.metrics.RecordLoss(ctx, "marker")
		}
	} else if pcm, err = r.codec.Decode(pkt.Payload); err != nil {
		r.log.Warn("decode failed, marking frame lost", "seq", pkt.Sequence, "error", err)
		pcm = nil
		if r.metrics != nil {
			r.metrics.RecordLoss(ctx, "marker")
		}
	}

	res := r.buf.Enqueue(pkt.Sequence, pcm)
	switch res {
	case jitter.EnqueueLate:
		if r.metrics != nil {
			r.metrics.RecordDiscard(ctx, "late")
		}
	case jitter.EnqueueDuplicate:
		if r.metrics != nil {
			r.metrics.RecordDiscard(ctx, "duplicate")
		}
	case jitter.EnqueueDropped:
		if r.metrics != nil {
			r.metrics.RecordDiscard(ctx, "overflow")
		}
	case jitter.EnqueueReset:
		r.log.Info("sequence discontinuity, session restarted", "seq", pkt.Sequence)
	}
}

// pull is the playback device callback: one call per frame period, must
// fill out and never block.
func (r *Receiver) pull(out []int16) {
	// The concealer lives on this goroutine; teardown only flags it.
	if r.concealStale.CompareAndSwap(true, false) {
		r.conceal.Reset()
	}

	ctx := context.Background()
	pcm, res := r.buf.Dequeue()
	switch res {
	case jitter.DequeueHit:
		copy(out, pcm)
		r.conceal.NoteHit(pcm)
		if r.metrics != nil {
			r.metrics.FramesPlayed.Add(ctx, 1)
		}
	case jitter.DequeueMiss:
		r.conceal.Conceal(out)
		if r.metrics != nil {
			r.metrics.RecordLoss(ctx, "missing")
		}
	case jitter.DequeueHold:
		// Pre-fill holds silence; recovery keeps the fade going so the
		// transition is not a hard mute.
		if r.buf.State() == jitter.StateRecovering {
			r.conceal.Conceal(out)
		}
	}
}

// touchSession marks packet arrival, creating the session on the first
// packet after start or idle teardown.
func (r *Receiver) touchSession(ctx context.Context, now time.Time) {
	r.mu.Lock()
	fresh := !r.session
	r.session = true
	r.lastPacket = now
	r.mu.Unlock()

	if fresh {
		r.log.Info("session started")
		if r.metrics != nil {
			r.metrics.ActiveSessions.Add(ctx, 1)
		}
	}
}

// checkIdle tears the session down once the idle timeout elapses without
// packets, releasing buffered frames and resetting per-session state.
func (r *Receiver) checkIdle(ctx context.Context) {
	r.mu.Lock()
	idle := r.session && time.Since(r.lastPacket) > r.idleTimeout
	if idle {
		r.session = false
		r.jitterMS = 0
	}
	r.mu.Unlock()

	if !idle {
		return
	}

	snap := r.buf.Snapshot()
	r.buf.Reset()
	r.concealStale.Store(true)
	r.prevArrival = time.Time{}
	r.log.Info("session ended after idle timeout",
		"played", snap.Counters.Played,
		"underruns", snap.Counters.Underruns,
		"late", snap.Counters.Late,
	)
	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, -1)
	}
}

// updateJitter folds one interarrival sample into the smoothed jitter
// estimate: j += (|d| - j) / 16, with d the difference between the
// arrival spacing and the send spacing of consecutive packets.
func (r *Receiver) updateJitter(arrival time.Time, sentNanos uint64) {
	if !r.prevArrival.IsZero() && sentNanos >= r.prevSent {
		arrivalDelta := arrival.Sub(r.prevArrival)
		sendDelta := time.Duration(sentNanos - r.prevSent)
		d := (arrivalDelta - sendDelta).Seconds() * 1000
		if d < 0 {
			d = -d
		}
		r.mu.Lock()
		r.jitterMS += (d - r.jitterMS) / 16
		r.mu.Unlock()
	}
	r.prevArrival = arrival
	r.prevSent = sentNanos
}

// statsLoop periodically reports buffer statistics and drives adaptation.
func (r *Receiver) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.statsInterval)
	defer ticker.Stop()

	var prev jitter.Counters
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		snap := r.buf.Snapshot()
		cur := snap.Counters
		if cur.Played < prev.Played || cur.Underruns < prev.Underruns {
			// Session teardown zeroed the counters mid-interval; rebase
			// and skip the boundary interval so the unsigned deltas stay
			// within one session.
			prev = cur
			continue
		}
		ticks := (cur.Played - prev.Played) + (cur.Underruns - prev.Underruns)
		lossRate := 0.0
		if ticks > 0 {
			lossRate = float64(cur.Underruns-prev.Underruns) / float64(ticks)
		}
		prev = cur

		if r.adapter != nil && ticks > 0 {
			next := r.adapter.Next(snap.Target, lossRate)
			if next != snap.Target {
				r.buf.SetTarget(next)
				r.log.Info("buffer target adapted",
					"target", next, "loss_rate", fmt.Sprintf("%.3f", lossRate))
			}
		}

		r.report(ctx, snap, lossRate)
	}
}

// report logs one statistics interval and forwards it to CSV and metrics.
func (r *Receiver) report(ctx context.Context, snap jitter.Snapshot, lossRate float64) {
	r.mu.Lock()
	jms := r.jitterMS
	active := r.session
	r.mu.Unlock()

	if !active {
		return
	}

	r.log.Info("receiver stats",
		"state", snap.State.String(),
		"health", fmt.Sprintf("%.1f", snap.Health),
		"occupancy", snap.Occupancy,
		"target", snap.Target,
		"received", snap.Counters.Arrived,
		"late", snap.Counters.Late,
		"duplicate", snap.Counters.Duplicates,
		"played", snap.Counters.Played,
		"underruns", snap.Counters.Underruns,
		"loss_rate", fmt.Sprintf("%.3f", lossRate),
		"jitter_ms", fmt.Sprintf("%.2f", jms),
	)

	if r.metrics != nil {
		r.metrics.RecordBufferState(ctx, snap.Occupancy, snap.Target, snap.Health)
		r.metrics.NetworkJitter.Record(ctx, jms)
	}

	if r.csv != nil {
		row := []string{
			strconv.FormatInt(time.Now().Unix(), 10),
			snap.State.String(),
			strconv.FormatFloat(snap.Health, 'f', 1, 64),
			strconv.Itoa(snap.Occupancy),
			strconv.Itoa(snap.Target),
			strconv.FormatUint(snap.Counters.Arrived, 10),
			strconv.FormatUint(snap.Counters.Late, 10),
			strconv.FormatUint(snap.Counters.Duplicates, 10),
			strconv.FormatUint(snap.Counters.Played, 10),
			strconv.FormatUint(snap.Counters.Underruns, 10),
			strconv.FormatFloat(lossRate, 'f', 3, 64),
			strconv.FormatFloat(jms, 'f', 2, 64),
		}
		if err := r.csv.Append(row); err != nil {
			r.log.Warn("csv append failed", "error", err)
		}
	}
}

// Snapshot exposes the buffer state for tests and diagnostics.
func (r *Receiver) Snapshot() jitter.Snapshot {
	return r.buf.Snapshot()
}
