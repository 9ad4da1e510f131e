package jaw

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/armtalk/pkg/audio"
	"github.com/gwillem/armtalk/pkg/bus"
)

// State is a talker progress update for display.
type State struct {
	T        time.Duration
	Loudness float64
	Position int
	Open     bool
}

// Talker replays an amplitude envelope against the wall clock and
// applies the resulting jaw commands to the bus, in timestamp order.
// The audio playback timeline runs elsewhere; this is the bus-write
// timeline of the same logical pipeline.
type Talker struct {
	bus     bus.Bus
	servoID int
	policy  Policy
	cfg     Config

	stateCh chan State
	logCh   chan string
}

// NewTalker creates a talker driving one servo as the jaw.
func NewTalker(b bus.Bus, servoID int, policy Policy, cfg Config) *Talker {
	return &Talker{
		bus:     b,
		servoID: servoID,
		policy:  policy,
		cfg:     cfg,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns a channel that receives progress updates.
func (t *Talker) States() <-chan State {
	return t.stateCh
}

// Logs returns a channel that receives log messages.
func (t *Talker) Logs() <-chan string {
	return t.logCh
}

func (t *Talker) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case t.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Run consumes the envelope to completion. Whatever happens - normal
// end of stream, context cancellation, or a bus fault - the jaw ends
// CLOSED with torque released.
func (t *Talker) Run(ctx context.Context, env *audio.Envelope) error {
	if err := t.bus.SetTorque(ctx, t.servoID, true); err != nil {
		return fmt.Errorf("enable jaw torque: %w", err)
	}
	t.log("Jaw torque enabled, speaking for %.1fs", env.Duration().Seconds())
	defer t.shutdown()

	if err := t.bus.WriteRegister(ctx, t.servoID, bus.RegGoalPosition, t.cfg.clamp(t.cfg.Closed)); err != nil {
		return fmt.Errorf("close jaw: %w", err)
	}

	start := time.Now()
	stream := env.Stream()
	lastPos := t.cfg.clamp(t.cfg.Closed)
	for {
		sample, ok := stream.Next()
		if !ok {
			break
		}

		if wait := sample.T - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		cmd := t.policy.Advance(sample)
		if cmd.Position != lastPos {
			if err := t.bus.WriteRegister(ctx, t.servoID, bus.RegGoalPosition, cmd.Position); err != nil {
				return fmt.Errorf("write jaw position: %w", err)
			}
			lastPos = cmd.Position
		}

		t.sendState(State{T: cmd.T, Loudness: sample.Loudness, Position: cmd.Position, Open: cmd.Open})
	}

	t.log("Done speaking")
	return nil
}

func (t *Talker) sendState(s State) {
	select {
	case t.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-t.stateCh:
		default:
		}
		t.stateCh <- s
	}
}

// shutdown forces the jaw closed and releases torque. It runs on every
// exit path with a fresh context so a cancelled session still parks the
// jaw.
func (t *Talker) shutdown() {
	ctx := context.Background()
	if err := t.bus.WriteRegister(ctx, t.servoID, bus.RegGoalPosition, t.cfg.clamp(t.cfg.Closed)); err != nil {
		t.log("Warning: failed to close jaw: %v", err)
	}
	if err := t.bus.SetTorque(ctx, t.servoID, false); err != nil {
		t.log("Warning: failed to release jaw torque: %v", err)
	}
}
