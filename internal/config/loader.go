package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stillwind/opuscast/internal/jitter"
)

// validFrameDurations are the whole-millisecond frame durations the codec
// supports.
var validFrameDurations = []int{5, 10, 20, 40, 60}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = TransportUDP
	}
	if cfg.Transport.Path == "" {
		cfg.Transport.Path = "/stream"
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 2
	}
	if cfg.Audio.FrameDurationMS == 0 {
		cfg.Audio.FrameDurationMS = 20
	}
	if cfg.Audio.Bitrate == 0 {
		cfg.Audio.Bitrate = 64000
	}
	if cfg.Buffer.Frames == 0 {
		cfg.Buffer.Frames = 30
	}
	if cfg.Buffer.MinFill == 0 {
		cfg.Buffer.MinFill = 1.0 / 6
	}
	if cfg.Buffer.TargetFill == 0 {
		cfg.Buffer.TargetFill = 1.0 / 3
	}
	if cfg.Buffer.RecoverAfterMisses == 0 {
		cfg.Buffer.RecoverAfterMisses = 3
	}
	if cfg.Buffer.Concealment == "" {
		cfg.Buffer.Concealment = "fade"
	}
	if cfg.Buffer.IdleTimeout == 0 {
		cfg.Buffer.IdleTimeout = Duration(5 * time.Second)
	}
	if cfg.Adapt.FloorFill == 0 {
		cfg.Adapt.FloorFill = 1.0 / 6
	}
	if cfg.Adapt.CeilingFill == 0 {
		cfg.Adapt.CeilingFill = 2.0 / 3
	}
	if cfg.Adapt.RaiseLossRate == 0 {
		cfg.Adapt.RaiseLossRate = 0.05
	}
	if cfg.Adapt.LowerLossRate == 0 {
		cfg.Adapt.LowerLossRate = 0.01
	}
	if cfg.Adapt.StableIntervals == 0 {
		cfg.Adapt.StableIntervals = 3
	}
	if cfg.Stats.IntervalFrames == 0 {
		cfg.Stats.IntervalFrames = 1000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if !cfg.Transport.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("transport.kind %q is invalid; valid values: udp, websocket", cfg.Transport.Kind))
	}
	if cfg.Transport.Addr == "" {
		errs = append(errs, errors.New("transport.addr is required"))
	}
	if cfg.Transport.SocketBuffer < 0 {
		errs = append(errs, fmt.Errorf("transport.socket_buffer %d must not be negative", cfg.Transport.SocketBuffer))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if !validFrameDuration(cfg.Audio.FrameDurationMS) {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d is invalid; valid values: %v", cfg.Audio.FrameDurationMS, validFrameDurations))
	}
	if cfg.Audio.Bitrate <= 0 {
		errs = append(errs, fmt.Errorf("audio.bitrate %d must be positive", cfg.Audio.Bitrate))
	}

	if cfg.Buffer.Frames < 2 {
		errs = append(errs, fmt.Errorf("buffer.frames %d must be at least 2", cfg.Buffer.Frames))
	}
	if cfg.Buffer.MinFill <= 0 || cfg.Buffer.MinFill > 1 {
		errs = append(errs, fmt.Errorf("buffer.min_fill %.3f is out of range (0, 1]", cfg.Buffer.MinFill))
	}
	if cfg.Buffer.TargetFill <= 0 || cfg.Buffer.TargetFill > 1 {
		errs = append(errs, fmt.Errorf("buffer.target_fill %.3f is out of range (0, 1]", cfg.Buffer.TargetFill))
	}
	if cfg.Buffer.TargetFill < cfg.Buffer.MinFill {
		errs = append(errs, fmt.Errorf("buffer.target_fill %.3f must not be below buffer.min_fill %.3f", cfg.Buffer.TargetFill, cfg.Buffer.MinFill))
	}
	if cfg.Buffer.RecoverAfterMisses < 1 {
		errs = append(errs, fmt.Errorf("buffer.recover_after_misses %d must be at least 1", cfg.Buffer.RecoverAfterMisses))
	}
	if _, err := jitter.ParseConcealMode(cfg.Buffer.Concealment); err != nil {
		errs = append(errs, fmt.Errorf("buffer.concealment: %w", err))
	}
	if cfg.Buffer.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("buffer.idle_timeout %s must be positive", cfg.Buffer.IdleTimeout.Std()))
	}

	if cfg.Adapt.IsEnabled() {
		if cfg.Adapt.FloorFill <= 0 || cfg.Adapt.FloorFill > 1 {
			errs = append(errs, fmt.Errorf("adaptation.floor_fill %.3f is out of range (0, 1]", cfg.Adapt.FloorFill))
		}
		if cfg.Adapt.CeilingFill < cfg.Adapt.FloorFill || cfg.Adapt.CeilingFill > 1 {
			errs = append(errs, fmt.Errorf("adaptation.ceiling_fill %.3f is out of range [floor_fill, 1]", cfg.Adapt.CeilingFill))
		}
		if cfg.Adapt.LowerLossRate >= cfg.Adapt.RaiseLossRate {
			errs = append(errs, fmt.Errorf("adaptation.lower_loss_rate %.3f must be below raise_loss_rate %.3f", cfg.Adapt.LowerLossRate, cfg.Adapt.RaiseLossRate))
		}
		if cfg.Adapt.StableIntervals < 1 {
			errs = append(errs, fmt.Errorf("adaptation.stable_intervals %d must be at least 1", cfg.Adapt.StableIntervals))
		}
	}

	if cfg.Stats.IntervalFrames < 1 {
		errs = append(errs, fmt.Errorf("stats.interval_frames %d must be at least 1", cfg.Stats.IntervalFrames))
	}

	return errors.Join(errs...)
}

func validFrameDuration(ms int) bool {
	for _, v := range validFrameDurations {
		if v == ms {
			return true
		}
	}
	return false
}
