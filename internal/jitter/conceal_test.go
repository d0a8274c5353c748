package jitter_test

import (
	"testing"

	"github.com/stillwind/opuscast/internal/jitter"
)

func TestParseConcealMode(t *testing.T) {
	tests := []struct {
		in      string
		want    jitter.ConcealMode
		wantErr bool
	}{
		{"fade", jitter.ConcealFade, false},
		{"repeat", jitter.ConcealRepeat, false},
		{"silence", jitter.ConcealSilence, false},
		{"mute", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := jitter.ParseConcealMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseConcealMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseConcealMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFadeDecaysTowardSilence(t *testing.T) {
	c := jitter.NewConcealer(jitter.ConcealFade, 4)
	c.NoteHit([]int16{1000, -1000, 1000, -1000})

	out := make([]int16, 4)
	prev := int16(1000)
	for i := 0; i < 5; i++ {
		c.Conceal(out)
		if out[0] < 0 || out[0] > prev {
			t.Fatalf("conceal %d: amplitude %d not decaying from %d", i, out[0], prev)
		}
		if out[0] != -out[1] {
			t.Fatalf("conceal %d: fade changed waveform shape: %v", i, out[:2])
		}
		prev = out[0]
	}
	if prev != 1000/32 {
		t.Errorf("amplitude after 5 fades = %d, want %d", prev, 1000/32)
	}

	// Deep fades bottom out at silence.
	for i := 0; i < 10; i++ {
		c.Conceal(out)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %d after deep fade, want 0", i, s)
		}
	}
}

func TestFadeResetsOnHit(t *testing.T) {
	c := jitter.NewConcealer(jitter.ConcealFade, 2)
	c.NoteHit([]int16{800, 800})
	out := make([]int16, 2)
	c.Conceal(out)
	c.Conceal(out)
	if c.Run() != 2 {
		t.Fatalf("run = %d, want 2", c.Run())
	}

	c.NoteHit([]int16{600, 600})
	if c.Run() != 0 {
		t.Fatalf("run after hit = %d, want 0", c.Run())
	}
	c.Conceal(out)
	if out[0] != 300 {
		t.Errorf("first conceal after new hit = %d, want 300", out[0])
	}
}

func TestRepeatMode(t *testing.T) {
	c := jitter.NewConcealer(jitter.ConcealRepeat, 3)
	c.NoteHit([]int16{5, 6, 7})
	out := make([]int16, 3)
	for i := 0; i < 3; i++ {
		c.Conceal(out)
		if out[0] != 5 || out[1] != 6 || out[2] != 7 {
			t.Fatalf("conceal %d: got %v, want last frame unchanged", i, out)
		}
	}
}

func TestSilenceMode(t *testing.T) {
	c := jitter.NewConcealer(jitter.ConcealSilence, 3)
	c.NoteHit([]int16{5, 6, 7})
	out := []int16{9, 9, 9}
	c.Conceal(out)
	for i, s := range out {
		if s != 0 {
			t.Errorf("sample %d = %d, want 0", i, s)
		}
	}
}

func TestResetClearsFadeSource(t *testing.T) {
	c := jitter.NewConcealer(jitter.ConcealFade, 4)
	c.NoteHit([]int16{1000, 1000, 1000, 1000})

	out := make([]int16, 4)
	c.Conceal(out)
	if out[0] != 500 {
		t.Fatalf("first conceal = %d, want 500", out[0])
	}

	c.Reset()
	c.Conceal(out)
	for i, s := range out {
		if s != 0 {
			t.Errorf("sample %d = %d after reset, want 0", i, s)
		}
	}
	if c.Run() != 1 {
		t.Errorf("run = %d, want 1 (one conceal since reset)", c.Run())
	}
}

func TestConcealBeforeAnyHitIsSilent(t *testing.T) {
	c := jitter.NewConcealer(jitter.ConcealFade, 2)
	out := []int16{9, 9}
	c.Conceal(out)
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("conceal before first frame = %v, want silence", out)
	}
}
