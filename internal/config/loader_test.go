package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stillwind/opuscast/internal/config"
)

const sampleYAML = `
log_level: debug
metrics_addr: ":9090"

transport:
  kind: udp
  addr: "127.0.0.1:5004"
  socket_buffer: 65536

audio:
  sample_rate: 48000
  channels: 2
  frame_duration_ms: 20
  bitrate: 64000

buffer:
  frames: 30
  min_fill: 0.17
  target_fill: 0.34
  recover_after_misses: 3
  concealment: fade
  idle_timeout: 5s

adaptation:
  enabled: true
  floor_fill: 0.2
  ceiling_fill: 0.7
  raise_loss_rate: 0.05
  lower_loss_rate: 0.01
  stable_intervals: 3

stats:
  interval_frames: 1000
  csv_file: stream_stats.csv
`

func TestLoadFromReader_SampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Transport.Kind != config.TransportUDP {
		t.Errorf("transport.kind = %q, want udp", cfg.Transport.Kind)
	}
	if cfg.Buffer.IdleTimeout.Std() != 5*time.Second {
		t.Errorf("idle_timeout = %s, want 5s", cfg.Buffer.IdleTimeout.Std())
	}
	if cfg.Stats.CSVFile != "stream_stats.csv" {
		t.Errorf("csv_file = %q", cfg.Stats.CSVFile)
	}
}

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  addr: ":5004"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("default log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 || cfg.Audio.FrameDurationMS != 20 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Buffer.Frames != 30 || cfg.Buffer.RecoverAfterMisses != 3 {
		t.Errorf("buffer defaults = %+v", cfg.Buffer)
	}
	if cfg.Buffer.Concealment != "fade" {
		t.Errorf("default concealment = %q, want fade", cfg.Buffer.Concealment)
	}
	if cfg.Stats.IntervalFrames != 1000 {
		t.Errorf("default interval_frames = %d, want 1000", cfg.Stats.IntervalFrames)
	}
	if !cfg.Adapt.IsEnabled() {
		t.Error("adaptation should be enabled by default")
	}
}

func TestAdaptationEnabledDefault(t *testing.T) {
	t.Parallel()
	omitted := `
transport:
  addr: ":5004"
`
	cfg, err := config.LoadFromReader(strings.NewReader(omitted))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !cfg.Adapt.IsEnabled() {
		t.Error("omitted adaptation section should leave adaptation on")
	}

	off := `
transport:
  addr: ":5004"
adaptation:
  enabled: false
`
	cfg, err = config.LoadFromReader(strings.NewReader(off))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Adapt.IsEnabled() {
		t.Error("enabled: false must turn adaptation off")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  addr: ":5004"
  proto: udp
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: loud
transport:
  kind: carrier-pigeon
audio:
  frame_duration_ms: 7
buffer:
  concealment: mute
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{"log_level", "transport.kind", "transport.addr", "frame_duration_ms", "concealment"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_FillOrdering(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  addr: ":5004"
buffer:
  min_fill: 0.5
  target_fill: 0.2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for target_fill below min_fill, got nil")
	}
	if !strings.Contains(err.Error(), "target_fill") {
		t.Errorf("error should mention target_fill, got: %v", err)
	}
}

func TestValidate_AdaptationHysteresis(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  addr: ":5004"
adaptation:
  enabled: true
  raise_loss_rate: 0.01
  lower_loss_rate: 0.05
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for inverted loss-rate thresholds, got nil")
	}
	if !strings.Contains(err.Error(), "lower_loss_rate") {
		t.Errorf("error should mention lower_loss_rate, got: %v", err)
	}
}

func TestThresholdsDerivation(t *testing.T) {
	t.Parallel()
	b := config.BufferConfig{
		Frames:             30,
		MinFill:            1.0 / 6,
		TargetFill:         1.0 / 3,
		RecoverAfterMisses: 3,
	}
	th := b.Thresholds()
	if th.Capacity != 30 {
		t.Errorf("capacity = %d, want 30", th.Capacity)
	}
	if th.Min != 5 {
		t.Errorf("min = %d, want 5", th.Min)
	}
	if th.Target != 10 {
		t.Errorf("target = %d, want 10", th.Target)
	}
	if th.MissLimit != 3 {
		t.Errorf("miss limit = %d, want 3", th.MissLimit)
	}

	// Tiny buffers still get at least one frame of pre-fill.
	tiny := config.BufferConfig{Frames: 2, MinFill: 0.1, TargetFill: 0.1, RecoverAfterMisses: 1}
	th = tiny.Thresholds()
	if th.Min != 1 || th.Target != 1 {
		t.Errorf("tiny thresholds = %+v, want min=1 target=1", th)
	}
}
