// Package config provides the configuration schema and loader for the
// opuscast sender and receiver.
package config

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stillwind/opuscast/internal/jitter"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TransportKind selects the datagram transport implementation.
type TransportKind string

const (
	// TransportUDP carries one packet per UDP datagram.
	TransportUDP TransportKind = "udp"

	// TransportWebSocket carries one packet per binary WebSocket message,
	// for networks where only HTTP gets through.
	TransportWebSocket TransportKind = "websocket"
)

// IsValid reports whether k is a recognised transport kind.
func (k TransportKind) IsValid() bool {
	return k == TransportUDP || k == TransportWebSocket
}

// Duration wraps time.Duration with YAML decoding from strings like "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure, loaded from a YAML file
// using [Load] or [LoadFromReader]. The same file configures both the
// sender and the receiver; each reads the sections it needs.
type Config struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the address the Prometheus /metrics endpoint listens
	// on (e.g. ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	Transport TransportConfig `yaml:"transport"`
	Audio     AudioConfig     `yaml:"audio"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Adapt     AdaptConfig     `yaml:"adaptation"`
	Stats     StatsConfig     `yaml:"stats"`
}

// TransportConfig selects and tunes the datagram transport.
type TransportConfig struct {
	// Kind is "udp" or "websocket". Default: udp.
	Kind TransportKind `yaml:"kind"`

	// Addr is the destination "host:port" for the sender, or the bind
	// address (e.g. ":5004") for the receiver.
	Addr string `yaml:"addr"`

	// Path is the WebSocket upgrade path. Default: /stream.
	Path string `yaml:"path"`

	// SocketBuffer sets SO_SNDBUF on the sender and SO_RCVBUF on the
	// receiver, in bytes. Zero keeps the kernel default.
	SocketBuffer int `yaml:"socket_buffer"`
}

// AudioConfig fixes the stream format for one session. Sender and
// receiver must agree on every field.
type AudioConfig struct {
	// SampleRate in Hz. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is 1 (mono) or 2 (stereo). Default: 2.
	Channels int `yaml:"channels"`

	// FrameDurationMS is the codec frame duration in milliseconds; must be
	// 5, 10, 20, 40 or 60. Default: 20.
	FrameDurationMS int `yaml:"frame_duration_ms"`

	// Bitrate is the encoder target in bits per second. Default: 64000.
	Bitrate int `yaml:"bitrate"`
}

// BufferConfig tunes the receive-side jitter buffer. Fill levels are
// fractions of Frames so the same config scales with buffer depth.
type BufferConfig struct {
	// Frames is the ring capacity. Default: 30.
	Frames int `yaml:"frames"`

	// MinFill is the fraction of Frames that floors the adaptive target
	// occupancy. Default: 1/6.
	MinFill float64 `yaml:"min_fill"`

	// TargetFill is the occupancy fraction at which playback starts and
	// recovery completes. Default: 1/3.
	TargetFill float64 `yaml:"target_fill"`

	// RecoverAfterMisses is the consecutive-miss count that flips playing
	// into recovering. Default: 3.
	RecoverAfterMisses int `yaml:"recover_after_misses"`

	// Concealment is "fade", "repeat" or "silence". Default: fade.
	Concealment string `yaml:"concealment"`

	// IdleTimeout destroys the session after this long without packets.
	// Default: 5s.
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// AdaptConfig tunes the target-occupancy adaptation loop.
type AdaptConfig struct {
	// Enabled turns adaptation off when set to false. Leaving it unset
	// (or omitting the whole section) keeps adaptation on. Default: true.
	Enabled *bool `yaml:"enabled"`

	// FloorFill and CeilingFill bound the adaptive target as fractions of
	// the buffer capacity. Defaults: 1/6 and 2/3.
	FloorFill   float64 `yaml:"floor_fill"`
	CeilingFill float64 `yaml:"ceiling_fill"`

	// RaiseLossRate is the per-interval loss rate above which the target
	// grows. Default: 0.05.
	RaiseLossRate float64 `yaml:"raise_loss_rate"`

	// LowerLossRate is the loss rate below which an interval counts as
	// stable. Default: 0.01.
	LowerLossRate float64 `yaml:"lower_loss_rate"`

	// StableIntervals is how many consecutive stable intervals shrink the
	// target by one frame. Default: 3.
	StableIntervals int `yaml:"stable_intervals"`
}

// StatsConfig controls periodic statistics reporting.
type StatsConfig struct {
	// IntervalFrames is how many frames pass between reports. Default: 1000.
	IntervalFrames int `yaml:"interval_frames"`

	// CSVFile, when set, appends one row per report to this file.
	CSVFile string `yaml:"csv_file"`
}

// Thresholds derives the jitter buffer thresholds from the buffer
// section, rounding fill fractions to the nearest frame but never below
// one.
func (b BufferConfig) Thresholds() jitter.Thresholds {
	min := int(math.Round(float64(b.Frames) * b.MinFill))
	if min < 1 {
		min = 1
	}
	target := int(math.Round(float64(b.Frames) * b.TargetFill))
	if target < min {
		target = min
	}
	return jitter.Thresholds{
		Capacity:  b.Frames,
		Min:       min,
		Target:    target,
		MissLimit: b.RecoverAfterMisses,
	}
}

// IsEnabled reports whether the adaptation loop should run; an unset
// Enabled counts as on.
func (a AdaptConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// AdaptBounds derives the adapter bounds in frames for a buffer of the
// given capacity.
func (a AdaptConfig) AdaptBounds(capacity int) jitter.AdaptConfig {
	floor := int(math.Round(float64(capacity) * a.FloorFill))
	if floor < 1 {
		floor = 1
	}
	ceiling := int(math.Round(float64(capacity) * a.CeilingFill))
	if ceiling < floor {
		ceiling = floor
	}
	return jitter.AdaptConfig{
		Floor:           floor,
		Ceiling:         ceiling,
		RaiseAbove:      a.RaiseLossRate,
		LowerBelow:      a.LowerLossRate,
		StableIntervals: a.StableIntervals,
	}
}
