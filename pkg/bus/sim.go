package bus

import (
	"context"
	"fmt"
	"sync"
)

// Write records one register write against the Sim, in order.
type Write struct {
	ID    int
	Reg   Register
	Value int
}

// Sim is an in-memory bus producing deterministic raw samples. It
// applies written homing offsets to present-position reads the way the
// servo firmware does, so calibration flows behave as on hardware.
type Sim struct {
	mu        sync.Mutex
	positions map[int]int            // actual encoder positions, [0, Modulus)
	regs      map[int]map[string]int // raw register values as written
	torque    map[int]bool
	writes    []Write
	failNext  int
	closed    bool
}

// NewSim creates a simulated bus with the given servo IDs present, all
// parked at the encoder midpoint.
func NewSim(ids ...int) *Sim {
	s := &Sim{
		positions: make(map[int]int),
		regs:      make(map[int]map[string]int),
		torque:    make(map[int]bool),
	}
	for _, id := range ids {
		s.positions[id] = Modulus / 2
		s.regs[id] = make(map[string]int)
	}
	return s
}

// SetPosition moves a simulated servo to a raw encoder position.
func (s *Sim) SetPosition(id, pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[id] = ((pos % Modulus) + Modulus) % Modulus
}

// FailNext makes the next n operations fail with ErrBusIO.
func (s *Sim) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Writes returns all register writes in the order they were applied.
func (s *Sim) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// TorqueEnabled reports the torque state of one servo.
func (s *Sim) TorqueEnabled(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torque[id]
}

// RegisterValue returns the last raw value written to a register.
func (s *Sim) RegisterValue(id int, reg Register) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[id][reg.Name]
}

func (s *Sim) check(id int) error {
	if s.closed {
		return fmt.Errorf("sim: %w: bus closed", ErrBusIO)
	}
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("sim: injected fault: %w", ErrBusIO)
	}
	if _, ok := s.positions[id]; !ok {
		return fmt.Errorf("sim: servo %d: %w", id, ErrDeviceNotFound)
	}
	return nil
}

func (s *Sim) ReadRegister(_ context.Context, id int, reg Register) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(id); err != nil {
		return 0, err
	}
	if reg == RegPresentPosition {
		offset := DecodeSignMagnitude(s.regs[id][RegHomingOffset.Name])
		return ((s.positions[id]-offset)%Modulus + Modulus) % Modulus, nil
	}
	return s.regs[id][reg.Name], nil
}

func (s *Sim) WriteRegister(_ context.Context, id int, reg Register, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(id); err != nil {
		return err
	}
	raw := value
	if reg == RegHomingOffset {
		raw = EncodeSignMagnitude(value)
	}
	s.regs[id][reg.Name] = raw
	s.writes = append(s.writes, Write{ID: id, Reg: reg, Value: value})
	return nil
}

func (s *Sim) Scan(_ context.Context, first, last int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("sim: %w: bus closed", ErrBusIO)
	}
	if s.failNext > 0 {
		s.failNext--
		return nil, fmt.Errorf("sim: injected fault: %w", ErrBusIO)
	}
	var ids []int
	for id := first; id <= last; id++ {
		if _, ok := s.positions[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Sim) SetTorque(_ context.Context, id int, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(id); err != nil {
		return err
	}
	s.torque[id] = enabled
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
