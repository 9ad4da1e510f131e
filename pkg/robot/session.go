package robot

import (
	"context"
	"fmt"

	"github.com/gwillem/armtalk/pkg/bus"
)

// Session drives one guided calibration run over a bus. The flow is
// Verify, Prepare, RecordHome, any number of Observe rounds, Finish.
// Nothing is persisted by the session itself; aborting before Finish
// leaves the servos factory-reset and no record written.
type Session struct {
	bus     bus.Bus
	motors  []MotorName
	ids     map[MotorName]int
	modulus int

	// DriveModes overrides joint polarity (0=normal, 1=inverted).
	// SO-101 joints are all normal by default.
	DriveModes map[MotorName]int

	offsets  map[MotorName]int
	trackers map[MotorName]*RangeTracker
}

// NewSession creates a calibration session for a standard SO-101 arm
// (six servos, IDs 1-6).
func NewSession(b bus.Bus) *Session {
	motors := AllMotors()
	ids := make(map[MotorName]int, len(motors))
	for i, name := range motors {
		ids[name] = i + 1
	}
	return &Session{
		bus:        b,
		motors:     motors,
		ids:        ids,
		modulus:    bus.Modulus,
		DriveModes: make(map[MotorName]int),
	}
}

// IDs returns the motor name to servo ID mapping for this session.
func (s *Session) IDs() map[MotorName]int {
	ids := make(map[MotorName]int, len(s.ids))
	for name, id := range s.ids {
		ids[name] = id
	}
	return ids
}

// Verify checks that every expected servo answers on the bus.
func (s *Session) Verify(ctx context.Context) error {
	found, err := s.bus.Scan(ctx, 1, len(s.motors))
	if err != nil {
		return fmt.Errorf("scan arm: %w", err)
	}
	present := make(map[int]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	for _, name := range s.motors {
		if !present[s.ids[name]] {
			return fmt.Errorf("%s (ID %d): %w", name, s.ids[name], bus.ErrDeviceNotFound)
		}
	}
	return nil
}

// Prepare puts every servo in a known state for calibration: torque
// off so the operator can move the arm freely, EPROM unlocked, position
// mode, and factory calibration (no offset, full travel limits).
func (s *Session) Prepare(ctx context.Context) error {
	for _, name := range s.motors {
		id := s.ids[name]
		if err := s.bus.SetTorque(ctx, id, false); err != nil {
			return fmt.Errorf("disable torque %s: %w", name, err)
		}
		if err := s.bus.WriteRegister(ctx, id, bus.RegLock, 0); err != nil {
			return fmt.Errorf("unlock %s: %w", name, err)
		}
		if err := s.bus.WriteRegister(ctx, id, bus.RegOperatingMode, 0); err != nil {
			return fmt.Errorf("set position mode %s: %w", name, err)
		}
		if err := s.bus.WriteRegister(ctx, id, bus.RegHomingOffset, 0); err != nil {
			return fmt.Errorf("reset offset %s: %w", name, err)
		}
		if err := s.bus.WriteRegister(ctx, id, bus.RegMinPositionLimit, 0); err != nil {
			return fmt.Errorf("reset min limit %s: %w", name, err)
		}
		if err := s.bus.WriteRegister(ctx, id, bus.RegMaxPositionLimit, s.modulus-1); err != nil {
			return fmt.Errorf("reset max limit %s: %w", name, err)
		}
	}
	return nil
}

// RecordHome samples the current pose as the home posture, computes the
// per-joint homing offsets and seeds the range trackers. Recalling it
// replaces the previous home; offsets never accumulate.
func (s *Session) RecordHome(ctx context.Context) (map[MotorName]int, error) {
	sampler := &CheckpointSampler{Bus: s.bus, IDs: s.ids}
	raws, err := sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("read home pose: %w", err)
	}

	s.offsets = make(map[MotorName]int, len(raws))
	s.trackers = make(map[MotorName]*RangeTracker, len(raws))
	for name, raw := range raws {
		offset := ComputeOffset(raw, s.modulus)
		s.offsets[name] = offset
		s.trackers[name] = NewRangeTracker(raw, offset, s.modulus, s.DriveModes[name])
	}
	return s.offsets, nil
}

// Observe runs one sampling round through the given strategy and feeds
// the result to the range trackers.
func (s *Session) Observe(ctx context.Context, sampler Sampler) error {
	if s.trackers == nil {
		return fmt.Errorf("observe before home pose recorded")
	}
	raws, err := sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("sample positions: %w", err)
	}
	for name, raw := range raws {
		if t, ok := s.trackers[name]; ok {
			t.Observe(raw)
		}
	}
	return nil
}

// Trackers exposes the per-joint range trackers for display.
func (s *Session) Trackers() map[MotorName]*RangeTracker {
	return s.trackers
}

// Finish validates the sweep, writes homing offsets and travel limits
// to the servos, and returns the completed record. Joints that never
// moved fail the whole run; the operator re-runs the sweep instead of
// the tool guessing limits.
func (s *Session) Finish(ctx context.Context) (Calibration, error) {
	if s.trackers == nil {
		return nil, fmt.Errorf("finish before home pose recorded")
	}

	for _, name := range s.motors {
		min, max := s.trackers[name].Limits()
		if min == max {
			return nil, fmt.Errorf("%s recorded no motion: %w", name, ErrInvalidCalibrationState)
		}
	}

	cal := make(Calibration, len(s.motors))
	for _, name := range s.motors {
		id := s.ids[name]
		min, max := s.trackers[name].Limits()
		if err := s.bus.WriteRegister(ctx, id, bus.RegHomingOffset, s.offsets[name]); err != nil {
			return nil, fmt.Errorf("write offset %s: %w", name, err)
		}
		if err := s.bus.WriteRegister(ctx, id, bus.RegMinPositionLimit, min); err != nil {
			return nil, fmt.Errorf("write min limit %s: %w", name, err)
		}
		if err := s.bus.WriteRegister(ctx, id, bus.RegMaxPositionLimit, max); err != nil {
			return nil, fmt.Errorf("write max limit %s: %w", name, err)
		}
		cal[name] = MotorCalibration{
			ID:           id,
			DriveMode:    s.DriveModes[name],
			HomingOffset: s.offsets[name],
			RangeMin:     min,
			RangeMax:     max,
		}
	}
	return cal, nil
}
