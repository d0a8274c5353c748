// Command opuscast streams live audio over a lossy datagram transport.
// The "send" subcommand captures, encodes and transmits; the "recv"
// subcommand receives, buffers and plays back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stillwind/opuscast/internal/config"
	"github.com/stillwind/opuscast/internal/jitter"
	"github.com/stillwind/opuscast/internal/observe"
	"github.com/stillwind/opuscast/internal/receiver"
	"github.com/stillwind/opuscast/internal/sender"
	"github.com/stillwind/opuscast/internal/transport"
	"github.com/stillwind/opuscast/pkg/audio"
	"github.com/stillwind/opuscast/pkg/audio/opus"
	"github.com/stillwind/opuscast/pkg/audio/synth"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}
	mode := os.Args[1]
	if mode != "send" && mode != "recv" {
		usage()
		return 2
	}

	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	tone := fs.Float64("tone", 440, "sine frequency in Hz for the synthetic capture source (send mode)")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "opuscast: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "opuscast: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	format := audio.Format{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		FrameDuration: time.Duration(cfg.Audio.FrameDurationMS) * time.Millisecond,
	}

	slog.Info("opuscast starting",
		"mode", mode,
		"version", version,
		"config", *configPath,
		"transport", cfg.Transport.Kind,
		"addr", cfg.Transport.Addr,
		"format", format.String(),
		"bitrate", cfg.Audio.Bitrate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics provider + optional Prometheus scrape endpoint.
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "opuscast",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics endpoint failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		slog.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
	}
	metrics := observe.DefaultMetrics()

	codec, err := opus.New(format, cfg.Audio.Bitrate)
	if err != nil {
		slog.Error("failed to create codec", "err", err)
		return 1
	}

	var csv *observe.CSVSink
	if cfg.Stats.CSVFile != "" {
		header := receiver.CSVHeader
		if mode == "send" {
			header = sender.CSVHeader
		}
		csv, err = observe.OpenCSV(cfg.Stats.CSVFile, header)
		if err != nil {
			slog.Error("failed to open stats csv", "err", err)
			return 1
		}
		defer csv.Close()
	}

	switch mode {
	case "send":
		err = runSend(ctx, cfg, format, codec, metrics, csv, *tone)
	case "recv":
		err = runRecv(ctx, cfg, format, codec, metrics, csv)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// runSend wires and runs the transmit pipeline with a synthetic tone
// source.
func runSend(ctx context.Context, cfg *config.Config, format audio.Format, codec audio.Codec, metrics *observe.Metrics, csv *observe.CSVSink, tone float64) error {
	tr, err := dialTransport(ctx, cfg.Transport)
	if err != nil {
		return err
	}
	defer tr.Close()

	capture := synth.NewToneCapture(format, tone)
	defer capture.Close()

	s, err := sender.New(sender.Config{
		Capture:       capture,
		Codec:         codec,
		Transport:     tr,
		StatsInterval: cfg.Stats.IntervalFrames,
		Metrics:       metrics,
		CSV:           csv,
	})
	if err != nil {
		return err
	}

	slog.Info("streaming — press Ctrl+C to stop")
	return s.Run(ctx)
}

// runRecv wires and runs the receive pipeline with a discarding playback
// sink.
func runRecv(ctx context.Context, cfg *config.Config, format audio.Format, codec audio.Codec, metrics *observe.Metrics, csv *observe.CSVSink) error {
	tr, err := listenTransport(ctx, cfg.Transport)
	if err != nil {
		return err
	}
	defer tr.Close()

	playback := synth.NewNullPlayback(format)
	defer playback.Close()

	conceal, err := jitter.ParseConcealMode(cfg.Buffer.Concealment)
	if err != nil {
		return err
	}

	rcfg := receiver.Config{
		Transport:     tr,
		Codec:         codec,
		Playback:      playback,
		Thresholds:    cfg.Buffer.Thresholds(),
		Conceal:       conceal,
		IdleTimeout:   cfg.Buffer.IdleTimeout.Std(),
		StatsInterval: cfg.Stats.IntervalFrames,
		Metrics:       metrics,
		CSV:           csv,
	}
	if cfg.Adapt.IsEnabled() {
		bounds := cfg.Adapt.AdaptBounds(cfg.Buffer.Frames)
		rcfg.Adapt = &bounds
	}

	r, err := receiver.New(rcfg)
	if err != nil {
		return err
	}

	slog.Info("listening — press Ctrl+C to stop")
	return r.Run(ctx)
}

// dialTransport creates the sending transport for the configured kind.
func dialTransport(ctx context.Context, cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Kind {
	case config.TransportWebSocket:
		return transport.DialWS(ctx, "ws://"+cfg.Addr+cfg.Path)
	default:
		return transport.DialUDP(cfg.Addr, cfg.SocketBuffer)
	}
}

// listenTransport creates the receiving transport for the configured kind.
// For WebSocket this blocks until a sender connects.
func listenTransport(ctx context.Context, cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Kind {
	case config.TransportWebSocket:
		l, err := transport.ListenWS(cfg.Addr, cfg.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("waiting for sender to connect", "addr", l.Addr(), "path", cfg.Path)
		ws, err := l.Accept(ctx)
		if err != nil {
			l.Close()
			return nil, err
		}
		return ws, nil
	default:
		return transport.ListenUDP(cfg.Addr, cfg.SocketBuffer)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: opuscast <send|recv> [-config config.yaml]

  send   capture, encode and transmit audio to transport.addr
  recv   receive, buffer and play back audio on transport.addr`)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
