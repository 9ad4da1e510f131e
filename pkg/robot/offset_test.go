package robot

import (
	"testing"

	"github.com/gwillem/armtalk/pkg/bus"
)

func TestComputeOffset_RecentersHomeToMidpoint(t *testing.T) {
	const modulus = 4096

	// Every home sample lands on the midpoint, except the antipodal pose
	// (raw 0) which is biased by one count so its offset fits the
	// sign-magnitude register.
	for raw := 0; raw < modulus; raw++ {
		offset := ComputeOffset(raw, modulus)
		got := Calibrated(raw, offset, modulus)
		want := modulus / 2
		if raw == 0 {
			want = modulus/2 + 1
		}
		if got != want {
			t.Fatalf("raw=%d offset=%d: calibrated home = %d, want %d", raw, offset, got, want)
		}
	}
}

func TestComputeOffset_WrapBoundaries(t *testing.T) {
	tests := []struct {
		raw, modulus, offset int
	}{
		{4095, 4096, 2047}, // just below wrap
		{0, 4096, 2047},    // exactly at wrap, folded into register range
		{2048, 4096, 0},    // already at midpoint
		{2047, 4096, -1},
		{1, 4096, -2047},
	}

	for _, tt := range tests {
		got := ComputeOffset(tt.raw, tt.modulus)
		if got != tt.offset {
			t.Errorf("ComputeOffset(%d, %d) = %d, want %d", tt.raw, tt.modulus, got, tt.offset)
		}
	}
}

func TestComputeOffset_SignedRange(t *testing.T) {
	const modulus = 4096
	for raw := 0; raw < modulus; raw++ {
		offset := ComputeOffset(raw, modulus)
		if offset < -(modulus/2-1) || offset > modulus/2-1 {
			t.Fatalf("ComputeOffset(%d) = %d, outside [-%d, %d]", raw, offset, modulus/2-1, modulus/2-1)
		}
	}
}

func TestComputeOffset_SurvivesRegisterEncoding(t *testing.T) {
	// Whatever the record says must be exactly what the firmware register
	// holds after the sign-magnitude round trip, for every home sample.
	const modulus = 4096
	for raw := 0; raw < modulus; raw++ {
		offset := ComputeOffset(raw, modulus)
		back := bus.DecodeSignMagnitude(bus.EncodeSignMagnitude(offset))
		if back != offset {
			t.Fatalf("raw=%d: offset %d encodes to %d in the register", raw, offset, back)
		}
	}
}

func TestComputeOffset_Idempotent(t *testing.T) {
	for _, raw := range []int{0, 1, 2047, 2048, 4095} {
		first := ComputeOffset(raw, 4096)
		for i := 0; i < 3; i++ {
			if again := ComputeOffset(raw, 4096); again != first {
				t.Fatalf("ComputeOffset(%d) changed between calls: %d then %d", raw, first, again)
			}
		}
	}
}

func TestCalibrated_ModularSubtraction(t *testing.T) {
	// A reading just across the wrap boundary must stay adjacent to one
	// just below it, not jump by a revolution.
	offset := ComputeOffset(4090, 4096)
	below := Calibrated(4095, offset, 4096)
	above := Calibrated(1, offset, 4096)
	if above-below != 2 {
		t.Errorf("positions across wrap: %d then %d, want a step of 2", below, above)
	}
}
