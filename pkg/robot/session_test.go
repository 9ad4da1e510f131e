package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/gwillem/armtalk/pkg/bus"
)

func preparedSession(t *testing.T) (*Session, *bus.Sim) {
	t.Helper()
	ctx := context.Background()
	sim := bus.NewSim(1, 2, 3, 4, 5, 6)
	s := NewSession(sim)
	if err := s.Verify(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	return s, sim
}

func TestSession_FullRun(t *testing.T) {
	ctx := context.Background()
	s, sim := preparedSession(t)

	// Home pose with the gripper near the wrap boundary.
	sim.SetPosition(6, 4095)
	offsets, err := s.RecordHome(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if offsets[Gripper] != 2047 {
		t.Errorf("gripper offset = %d, want 2047", offsets[Gripper])
	}

	// Sweep: move every joint through some travel, checkpoint each pose.
	sampler := &CheckpointSampler{Bus: sim, IDs: s.IDs()}
	for _, delta := range []int{-400, 300, 0} {
		for id := 1; id <= 6; id++ {
			base := 2048
			if id == 6 {
				base = 4095
			}
			sim.SetPosition(id, base+delta)
		}
		if err := s.Observe(ctx, sampler); err != nil {
			t.Fatal(err)
		}
	}

	cal, err := s.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}

	g := cal[Gripper]
	if g.RangeMin != 1648 || g.RangeMax != 2348 {
		t.Errorf("gripper range = (%d, %d), want (1648, 2348)", g.RangeMin, g.RangeMax)
	}
	if g.HomingOffset != 2047 || g.DriveMode != 0 || g.ID != 6 {
		t.Errorf("gripper record = %+v", g)
	}

	// Offsets and limits landed in the servo registers, sign-magnitude encoded.
	if got := sim.RegisterValue(6, bus.RegHomingOffset); got != bus.EncodeSignMagnitude(2047) {
		t.Errorf("servo offset register = %#x", got)
	}
	if got := sim.RegisterValue(6, bus.RegMinPositionLimit); got != 1648 {
		t.Errorf("servo min limit = %d, want 1648", got)
	}
	if got := sim.RegisterValue(6, bus.RegMaxPositionLimit); got != 2348 {
		t.Errorf("servo max limit = %d, want 2348", got)
	}
}

func TestSession_HomeAtWrapMatchesFirmware(t *testing.T) {
	ctx := context.Background()
	s, sim := preparedSession(t)

	// Home pose exactly at the encoder wrap. The recorded offset must be
	// the value the firmware register actually ends up holding.
	sim.SetPosition(1, 0)
	if _, err := s.RecordHome(ctx); err != nil {
		t.Fatal(err)
	}

	sampler := &CheckpointSampler{Bus: sim, IDs: s.IDs()}
	for _, delta := range []int{-300, 400} {
		for id := 1; id <= 6; id++ {
			base := 2048
			if id == 1 {
				base = 0
			}
			sim.SetPosition(id, base+delta)
		}
		if err := s.Observe(ctx, sampler); err != nil {
			t.Fatal(err)
		}
	}

	cal, err := s.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}

	recorded := cal[ShoulderPan].HomingOffset
	inRegister := bus.DecodeSignMagnitude(sim.RegisterValue(1, bus.RegHomingOffset))
	if recorded != inRegister {
		t.Fatalf("record says offset %d, firmware holds %d", recorded, inRegister)
	}
	if recorded != 2047 {
		t.Errorf("offset at wrap = %d, want 2047", recorded)
	}
}

func TestSession_VerifyMissingServo(t *testing.T) {
	ctx := context.Background()
	sim := bus.NewSim(1, 2, 3, 4, 5) // no gripper
	s := NewSession(sim)

	err := s.Verify(ctx)
	if !errors.Is(err, bus.ErrDeviceNotFound) {
		t.Errorf("got %v, want ErrDeviceNotFound", err)
	}
}

func TestSession_FinishWithoutMotion(t *testing.T) {
	ctx := context.Background()
	s, sim := preparedSession(t)

	if _, err := s.RecordHome(ctx); err != nil {
		t.Fatal(err)
	}

	// Move every joint except the wrist, then checkpoint.
	sampler := &CheckpointSampler{Bus: sim, IDs: s.IDs()}
	for id := 1; id <= 6; id++ {
		if id != 5 {
			sim.SetPosition(id, 2500)
		}
	}
	if err := s.Observe(ctx, sampler); err != nil {
		t.Fatal(err)
	}

	before := len(sim.Writes())
	_, err := s.Finish(ctx)
	if !errors.Is(err, ErrInvalidCalibrationState) {
		t.Fatalf("got %v, want ErrInvalidCalibrationState", err)
	}

	// Validation failed before anything was written to the servos.
	if got := len(sim.Writes()); got != before {
		t.Errorf("%d register writes during failed Finish, want 0", got-before)
	}
}

func TestSession_PrepareResetsFactoryCalibration(t *testing.T) {
	ctx := context.Background()
	sim := bus.NewSim(1, 2, 3, 4, 5, 6)
	for id := 1; id <= 6; id++ {
		sim.WriteRegister(ctx, id, bus.RegHomingOffset, 500)
	}

	s := NewSession(sim)
	if err := s.Prepare(ctx); err != nil {
		t.Fatal(err)
	}

	for id := 1; id <= 6; id++ {
		if sim.TorqueEnabled(id) {
			t.Errorf("servo %d torque still enabled", id)
		}
		if got := sim.RegisterValue(id, bus.RegHomingOffset); got != 0 {
			t.Errorf("servo %d offset = %d after reset", id, got)
		}
		if got := sim.RegisterValue(id, bus.RegMaxPositionLimit); got != bus.Modulus-1 {
			t.Errorf("servo %d max limit = %d, want %d", id, got, bus.Modulus-1)
		}
	}
}
