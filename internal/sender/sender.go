// Package sender implements the transmit pipeline: capture one PCM frame
// per period, encode it, frame it with a sequence number and capture
// timestamp, and hand it to the transport. The pipeline never blocks on
// the network longer than one frame and never retransmits; a frame that
// cannot be delivered is dropped and accounted for.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stillwind/opuscast/internal/observe"
	"github.com/stillwind/opuscast/internal/transport"
	"github.com/stillwind/opuscast/internal/wire"
	"github.com/stillwind/opuscast/pkg/audio"
)

// CSVHeader is the column layout of the sender's statistics CSV.
var CSVHeader = []string{
	"timestamp", "frames_sent", "encode_errors", "send_errors",
	"raw_bytes", "compressed_bytes", "compression_ratio", "frame_rate",
}

// Config wires a Sender together. Capture, Codec and Transport are
// required; the telemetry fields are optional.
type Config struct {
	Capture   audio.CaptureDevice
	Codec     audio.Codec
	Transport transport.Transport

	// StatsInterval is how many captured frames pass between statistics
	// reports. Zero disables periodic reporting.
	StatsInterval int

	// Metrics receives per-frame instrument updates. Nil disables.
	Metrics *observe.Metrics

	// CSV receives one row per statistics report. Nil disables.
	CSV *observe.CSVSink

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Stats is a point-in-time view of the sender's counters.
type Stats struct {
	FramesSent      uint64
	EncodeErrors    uint64
	SendErrors      uint64
	RawBytes        uint64
	CompressedBytes uint64
}

// CompressionRatio returns raw/compressed bytes, or 0 before any frame
// was compressed.
func (s Stats) CompressionRatio() float64 {
	if s.CompressedBytes == 0 {
		return 0
	}
	return float64(s.RawBytes) / float64(s.CompressedBytes)
}

// Sender runs the capture → encode → packetize → transmit pipeline.
type Sender struct {
	capture   audio.CaptureDevice
	codec     audio.Codec
	transport transport.Transport
	metrics   *observe.Metrics
	csv       *observe.CSVSink
	log       *slog.Logger

	statsInterval int

	mu    sync.Mutex
	stats Stats
}

// New validates the pipeline wiring. The capture format must match the
// codec format exactly; a mismatch would desynchronise the frame clock
// and is a fatal configuration error.
func New(cfg Config) (*Sender, error) {
	if cfg.Capture == nil || cfg.Codec == nil || cfg.Transport == nil {
		return nil, errors.New("sender: capture, codec and transport are all required")
	}
	if got, want := cfg.Capture.Format(), cfg.Codec.Format(); got != want {
		return nil, fmt.Errorf("sender: capture format %s does not match codec format %s", got, want)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		capture:       cfg.Capture,
		codec:         cfg.Codec,
		transport:     cfg.Transport,
		metrics:       cfg.Metrics,
		csv:           cfg.CSV,
		log:           log,
		statsInterval: cfg.StatsInterval,
	}, nil
}

// Run streams until ctx is cancelled or the transport closes. A clean
// cancellation returns nil.
func (s *Sender) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	frames := make(chan []int16, 4)

	// Capture goroutine: paced by the device, one frame per period.
	g.Go(func() error {
		defer close(frames)
		for {
			pcm, err := s.capture.ReadFrame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("sender: capture: %w", err)
			}
			select {
			case frames <- pcm:
			case <-ctx.Done():
				return nil
			}
		}
	})

	// Encode-and-send goroutine.
	g.Go(func() error {
		var seq uint32
		epoch := time.Now()
		lastReport := epoch
		var lastStats Stats

		for pcm := range frames {
			s.sendFrame(ctx, seq, uint64(time.Since(epoch).Nanoseconds()), pcm)
			seq++

			if s.statsInterval > 0 && seq%uint32(s.statsInterval) == 0 {
				now := time.Now()
				cur := s.Stats()
				s.report(ctx, cur, lastStats, now.Sub(lastReport))
				lastStats = cur
				lastReport = now
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		return nil
	})

	return g.Wait()
}

// sendFrame encodes and transmits one frame. Encode failure still
// transmits a zero-length loss marker so the receiver sees the sequence
// gap explicitly instead of inferring it.
func (s *Sender) sendFrame(ctx context.Context, seq uint32, timestamp uint64, pcm []int16) {
	rawBytes := len(pcm) * 2

	payload, err := s.codec.Encode(pcm)
	if err != nil {
		s.log.Warn("encode failed, sending loss marker", "seq", seq, "error", err)
		s.mu.Lock()
		s.stats.EncodeErrors++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordSendError(ctx, "encode")
		}
		payload = nil
	}

	datagram, err := wire.Marshal(wire.Packet{Sequence: seq, Timestamp: timestamp, Payload: payload})
	if err != nil {
		s.log.Error("packetize failed, dropping frame", "seq", seq, "error", err)
		return
	}

	if err := s.transport.Send(ctx, datagram); err != nil {
		if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
			return
		}
		s.log.Warn("send failed, dropping frame", "seq", seq, "error", err)
		s.mu.Lock()
		s.stats.SendErrors++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordSendError(ctx, "send")
		}
		return
	}

	s.mu.Lock()
	s.stats.FramesSent++
	s.stats.RawBytes += uint64(rawBytes)
	s.stats.CompressedBytes += uint64(len(payload))
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.FramesSent.Add(ctx, 1)
		s.metrics.BytesRaw.Add(ctx, int64(rawBytes))
		s.metrics.BytesCompressed.Add(ctx, int64(len(payload)))
	}
}

// report logs one statistics interval and appends it to the CSV sink.
func (s *Sender) report(ctx context.Context, cur, prev Stats, elapsed time.Duration) {
	sent := cur.FramesSent - prev.FramesSent
	rate := 0.0
	if elapsed > 0 {
		rate = float64(sent) / elapsed.Seconds()
	}
	ratio := cur.CompressionRatio()

	s.log.Info("sender stats",
		"frames_sent", cur.FramesSent,
		"encode_errors", cur.EncodeErrors,
		"send_errors", cur.SendErrors,
		"compression_ratio", fmt.Sprintf("%.1f", ratio),
		"frame_rate", fmt.Sprintf("%.1f", rate),
	)

	if s.metrics != nil && ratio > 0 {
		s.metrics.CompressionRatio.Record(ctx, ratio)
	}

	if s.csv != nil {
		row := []string{
			strconv.FormatInt(time.Now().Unix(), 10),
			strconv.FormatUint(cur.FramesSent, 10),
			strconv.FormatUint(cur.EncodeErrors, 10),
			strconv.FormatUint(cur.SendErrors, 10),
			strconv.FormatUint(cur.RawBytes, 10),
			strconv.FormatUint(cur.CompressedBytes, 10),
			strconv.FormatFloat(ratio, 'f', 2, 64),
			strconv.FormatFloat(rate, 'f', 1, 64),
		}
		if err := s.csv.Append(row); err != nil {
			s.log.Warn("csv append failed", "error", err)
		}
	}
}

// Stats returns a copy of the sender's counters.
func (s *Sender) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
