package robot

import (
	"context"
	"time"

	"github.com/gwillem/armtalk/pkg/bus"
)

// RangeTracker maintains running min/max of the calibrated position of
// one joint across a range-of-motion sweep. Until a sample lands
// outside the home position, both limits equal the calibrated home
// value (the "unset" sentinel).
type RangeTracker struct {
	offset    int
	modulus   int
	driveMode int // 0=normal, 1=inverted
	min, max  int
	current   int
	moved     bool
}

// NewRangeTracker creates a tracker for a joint with the given homing
// offset and drive mode, seeded with the raw home sample.
func NewRangeTracker(homeRaw, offset, modulus, driveMode int) *RangeTracker {
	t := &RangeTracker{offset: offset, modulus: modulus, driveMode: driveMode}
	home := t.calibrate(homeRaw)
	t.min, t.max, t.current = home, home, home
	return t
}

func (t *RangeTracker) calibrate(raw int) int {
	pos := Calibrated(raw, t.offset, t.modulus)
	if t.driveMode != 0 {
		// Inverted joints mirror around the home-centered midpoint.
		pos = wrap(t.modulus-pos, t.modulus)
	}
	return pos
}

// Observe records one raw sample. The contract is identical whether
// samples arrive from operator checkpoints or a continuous poll.
func (t *RangeTracker) Observe(raw int) {
	pos := t.calibrate(raw)
	t.current = pos
	if pos < t.min {
		t.min = pos
		t.moved = true
	}
	if pos > t.max {
		t.max = pos
		t.moved = true
	}
}

// Limits returns the observed (min, max); min <= max always holds.
func (t *RangeTracker) Limits() (min, max int) {
	return t.min, t.max
}

// Current returns the calibrated position of the last observation.
func (t *RangeTracker) Current() int {
	return t.current
}

// Moved reports whether any observation landed outside the home sentinel.
func (t *RangeTracker) Moved() bool {
	return t.moved
}

// Sampler produces one round of raw position samples per call. The
// range trackers are agnostic to the sampling cadence; checkpoint and
// polling strategies implement the same contract.
type Sampler interface {
	Sample(ctx context.Context) (map[MotorName]int, error)
}

// CheckpointSampler reads every joint once per operator checkpoint.
type CheckpointSampler struct {
	Bus bus.Bus
	IDs map[MotorName]int
}

func (s *CheckpointSampler) Sample(ctx context.Context) (map[MotorName]int, error) {
	positions := make(map[MotorName]int, len(s.IDs))
	for name, id := range s.IDs {
		pos, err := s.Bus.ReadRegister(ctx, id, bus.RegPresentPosition)
		if err != nil {
			return nil, err
		}
		positions[name] = pos
	}
	return positions, nil
}

// PollSampler paces a CheckpointSampler at a fixed interval, for sweeps
// where the operator prefers continuous tracking over checkpoints.
type PollSampler struct {
	CheckpointSampler
	Interval time.Duration
	last     time.Time
}

func (s *PollSampler) Sample(ctx context.Context) (map[MotorName]int, error) {
	if wait := s.Interval - time.Since(s.last); wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	s.last = time.Now()
	return s.CheckpointSampler.Sample(ctx)
}
