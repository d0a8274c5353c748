package jitter_test

import (
	"testing"

	"github.com/stillwind/opuscast/internal/jitter"
)

func testAdaptConfig() jitter.AdaptConfig {
	return jitter.AdaptConfig{
		Floor:           4,
		Ceiling:         10,
		RaiseAbove:      0.05,
		LowerBelow:      0.01,
		StableIntervals: 3,
	}
}

func TestAdapterRaisesUnderLoss(t *testing.T) {
	a := jitter.NewAdapter(testAdaptConfig())
	target := 4
	for i := 0; i < 20; i++ {
		target = a.Next(target, 0.20)
	}
	if target != 10 {
		t.Errorf("target after sustained loss = %d, want ceiling 10", target)
	}
}

func TestAdapterLowersOnlyAfterSustainedStability(t *testing.T) {
	a := jitter.NewAdapter(testAdaptConfig())
	target := 8

	// Two calm intervals are not enough.
	target = a.Next(target, 0)
	target = a.Next(target, 0)
	if target != 8 {
		t.Fatalf("target after 2 calm intervals = %d, want 8", target)
	}
	// The third completes the stable run.
	target = a.Next(target, 0)
	if target != 7 {
		t.Fatalf("target after 3 calm intervals = %d, want 7", target)
	}
	// The count restarts after each decrement.
	target = a.Next(target, 0)
	target = a.Next(target, 0)
	if target != 7 {
		t.Fatalf("target = %d, want 7 until the next stable run completes", target)
	}
}

func TestAdapterHysteresisBandHolds(t *testing.T) {
	a := jitter.NewAdapter(testAdaptConfig())
	target := 6
	// A rate between the lower and raise thresholds neither moves the
	// target nor accumulates stability.
	for i := 0; i < 10; i++ {
		target = a.Next(target, 0.03)
	}
	if target != 6 {
		t.Fatalf("target inside hysteresis band = %d, want 6", target)
	}

	// The band also resets a partial stable run.
	a2 := jitter.NewAdapter(testAdaptConfig())
	target = 6
	target = a2.Next(target, 0)
	target = a2.Next(target, 0)
	target = a2.Next(target, 0.03)
	target = a2.Next(target, 0)
	if target != 6 {
		t.Errorf("target = %d, want 6: interrupted stable run must not lower", target)
	}
}

func TestAdapterRespectsFloor(t *testing.T) {
	a := jitter.NewAdapter(testAdaptConfig())
	target := 5
	for i := 0; i < 30; i++ {
		target = a.Next(target, 0)
	}
	if target != 4 {
		t.Errorf("target after long calm = %d, want floor 4", target)
	}
}
