package sender_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stillwind/opuscast/internal/sender"
	"github.com/stillwind/opuscast/internal/transport"
	"github.com/stillwind/opuscast/internal/wire"
	"github.com/stillwind/opuscast/pkg/audio"
	"github.com/stillwind/opuscast/pkg/audio/mock"
)

func testFormat() audio.Format {
	return audio.Format{SampleRate: 8000, Channels: 1, FrameDuration: time.Millisecond}
}

// frames builds n distinct test frames of the format's size.
func frames(f audio.Format, n int) [][]int16 {
	out := make([][]int16, n)
	for i := range out {
		frame := make([]int16, f.FrameSamples())
		for j := range frame {
			frame[j] = int16(i)
		}
		out[i] = frame
	}
	return out
}

func TestNewRejectsFormatMismatch(t *testing.T) {
	local, _ := transport.Pipe()
	_, err := sender.New(sender.Config{
		Capture:   &mock.Capture{Fmt: testFormat()},
		Codec:     &mock.Codec{Fmt: audio.Format{SampleRate: 48000, Channels: 2, FrameDuration: 20 * time.Millisecond}},
		Transport: local,
	})
	if err == nil {
		t.Fatal("expected format mismatch error, got nil")
	}
}

func TestRunStreamsFramesInSequence(t *testing.T) {
	format := testFormat()
	capture := &mock.Capture{Fmt: format, Frames: frames(format, 5)}
	local, remote := transport.Pipe()

	s, err := sender.New(sender.Config{
		Capture:   capture,
		Codec:     &mock.Codec{Fmt: format},
		Transport: local,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 5; i++ {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
		data, err := remote.Receive(rctx)
		rcancel()
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		pkt, err := wire.Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal %d: %v", i, err)
		}
		if pkt.Sequence != uint32(i) {
			t.Errorf("packet %d sequence = %d", i, pkt.Sequence)
		}
		pcm := audio.BytesToInt16s(pkt.Payload)
		if len(pcm) != format.FrameSamples() || pcm[0] != int16(i) {
			t.Errorf("packet %d payload wrong: len %d first %d", i, len(pcm), pcm[0])
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := s.Stats()
	if stats.FramesSent != 5 {
		t.Errorf("frames sent = %d, want 5", stats.FramesSent)
	}
	if stats.CompressionRatio() != 1.0 {
		t.Errorf("pass-through compression ratio = %v, want 1", stats.CompressionRatio())
	}
}

func TestEncodeFailureSendsLossMarker(t *testing.T) {
	format := testFormat()
	capture := &mock.Capture{Fmt: format, Frames: frames(format, 2)}
	codec := &mock.Codec{Fmt: format, EncodeErr: errors.New("encoder wedged")}
	local, remote := transport.Pipe()

	s, err := sender.New(sender.Config{Capture: capture, Codec: codec, Transport: local})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
		data, err := remote.Receive(rctx)
		rcancel()
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		pkt, err := wire.Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal %d: %v", i, err)
		}
		if !pkt.IsLossMarker() {
			t.Errorf("packet %d is not a loss marker, payload %d bytes", i, len(pkt.Payload))
		}
		if pkt.Sequence != uint32(i) {
			t.Errorf("loss marker %d sequence = %d: numbering must continue through failures", i, pkt.Sequence)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats := s.Stats(); stats.EncodeErrors != 2 {
		t.Errorf("encode errors = %d, want 2", stats.EncodeErrors)
	}
}
