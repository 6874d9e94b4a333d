package main

import (
	"math"
	"testing"
)

func TestMixStraightAhead(t *testing.T) {
	cmd := mixWheels(1, 0)
	for _, v := range []float64{cmd.LF, cmd.LR, cmd.RF, cmd.RR} {
		if v != 1 {
			t.Fatalf("full throttle should drive all wheels at 1: %+v", cmd)
		}
	}
}

func TestMixSpinInPlace(t *testing.T) {
	cmd := mixWheels(0, 1)
	if cmd.LF != 1 || cmd.LR != 1 {
		t.Fatalf("left side should run forward: %+v", cmd)
	}
	if cmd.RF != -1 || cmd.RR != -1 {
		t.Fatalf("right side should run reverse: %+v", cmd)
	}
}

func TestMixNormalizesSaturatedTurn(t *testing.T) {
	cmd := mixWheels(1, 1)
	// left = 2, right = 0 before normalization by max(|l|,|r|,1) = 2.
	if cmd.LF != 1 || cmd.LR != 1 {
		t.Fatalf("left side should saturate at 1: %+v", cmd)
	}
	if cmd.RF != 0 || cmd.RR != 0 {
		t.Fatalf("right side should be 0: %+v", cmd)
	}
}

func TestMixIdle(t *testing.T) {
	cmd := mixWheels(0, 0)
	for _, v := range []float64{cmd.LF, cmd.LR, cmd.RF, cmd.RR} {
		if v != 0 {
			t.Fatalf("idle mix should be zero: %+v", cmd)
		}
	}
}

func TestMixStaysInRange(t *testing.T) {
	for _, throttle := range []float64{-1, -0.5, 0, 0.5, 1} {
		for _, steering := range []float64{-1, -0.5, 0, 0.5, 1} {
			cmd := mixWheels(throttle, steering)
			for _, v := range []float64{cmd.LF, cmd.LR, cmd.RF, cmd.RR} {
				if math.Abs(v) > 1 {
					t.Fatalf("mix(%v, %v) out of range: %+v", throttle, steering, cmd)
				}
			}
		}
	}
}
