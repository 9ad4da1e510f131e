// Package jaw maps speech amplitude envelopes to gripper jaw motion.
package jaw

import (
	"fmt"
	"math"
	"time"

	"github.com/gwillem/armtalk/pkg/audio"
)

// Mode selects how the jaw follows the amplitude envelope.
type Mode string

const (
	// ModePulse snaps the jaw fully open on loudness rises, puppet-like.
	ModePulse Mode = "pulse"
	// ModeAmplitude follows the loudness continuously, wave-like.
	ModeAmplitude Mode = "amplitude"
)

// Command is one jaw target: a clamped servo position at an offset from
// the start of speech.
type Command struct {
	T        time.Duration
	Position int
	Open     bool
}

// Config holds per-session jaw tuning. No module-level state: every
// policy gets its own copy so sessions and tests run independently.
type Config struct {
	Closed int // servo position with the jaw shut
	Open   int // servo position with the jaw fully open

	// Pulse policy tuning.
	Threshold float64       // loudness that triggers a pulse
	Hold      time.Duration // how long the jaw stays open per pulse
	Cooldown  time.Duration // minimum gap between pulses

	// Amplitude policy tuning.
	Gain  float64 // loudness multiplier before clamping
	Boost float64 // exponent < 1 lifts quiet sounds (1 = linear)
}

// Defaults for an SO-101 gripper, from the reference arm.
func DefaultConfig() Config {
	return Config{
		Closed:    1945,
		Open:      2600,
		Threshold: 0.05,
		Hold:      100 * time.Millisecond,
		Cooldown:  50 * time.Millisecond,
		Gain:      1.0,
		Boost:     0.7,
	}
}

// Policy advances one amplitude sample to one jaw command. Both policy
// variants implement this single operation and share no state.
type Policy interface {
	Advance(s audio.Sample) Command
}

// NewPolicy builds the policy for a mode.
func NewPolicy(mode Mode, cfg Config) (Policy, error) {
	switch mode {
	case ModePulse:
		return NewPulsePolicy(cfg), nil
	case ModeAmplitude:
		return NewAmplitudePolicy(cfg), nil
	default:
		return nil, fmt.Errorf("unknown jaw mode %q", mode)
	}
}

// clamp constrains a position to the jaw interval regardless of how
// closed and open are ordered.
func (c Config) clamp(pos int) int {
	lo, hi := c.Closed, c.Open
	if lo > hi {
		lo, hi = hi, lo
	}
	if pos < lo {
		return lo
	}
	if pos > hi {
		return hi
	}
	return pos
}

// PulsePolicy is a two-state machine: CLOSED until a debounced rising
// edge crosses the threshold, then OPEN until the hold duration elapses.
// The close is unconditional; continued loudness does not re-arm it.
type PulsePolicy struct {
	cfg       Config
	open      bool
	openedAt  time.Duration
	lastPulse time.Duration
	wasAbove  bool
}

func NewPulsePolicy(cfg Config) *PulsePolicy {
	return &PulsePolicy{
		cfg:       cfg,
		lastPulse: -cfg.Cooldown, // first pulse is never debounced away
	}
}

func (p *PulsePolicy) Advance(s audio.Sample) Command {
	// Hold expiry closes the jaw before anything else is considered.
	if p.open && s.T-p.openedAt >= p.cfg.Hold {
		p.open = false
	}

	above := s.Loudness > p.cfg.Threshold
	if above && !p.wasAbove && !p.open && s.T-p.lastPulse >= p.cfg.Cooldown {
		p.open = true
		p.openedAt = s.T
		p.lastPulse = s.T
	}
	p.wasAbove = above

	pos := p.cfg.Closed
	if p.open {
		pos = p.cfg.Open
	}
	return Command{T: s.T, Position: p.cfg.clamp(pos), Open: p.open}
}

// AmplitudePolicy maps loudness straight to jaw opening, no hysteresis:
// target = closed + (open-closed) * clamp(loudness^boost * gain, 0, 1).
// The float result is truncated toward zero, matching the reference arm
// scripts; servo firmware wants integer register values either way.
type AmplitudePolicy struct {
	cfg Config
}

func NewAmplitudePolicy(cfg Config) *AmplitudePolicy {
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	if cfg.Boost == 0 {
		cfg.Boost = 1
	}
	return &AmplitudePolicy{cfg: cfg}
}

func (p *AmplitudePolicy) Advance(s audio.Sample) Command {
	level := s.Loudness
	if level < 0 {
		level = 0
	}
	level = math.Pow(level, p.cfg.Boost) * p.cfg.Gain
	if level > 1 {
		level = 1
	}

	pos := int(float64(p.cfg.Closed) + float64(p.cfg.Open-p.cfg.Closed)*level)
	return Command{T: s.T, Position: p.cfg.clamp(pos), Open: level > 0}
}
