// Package bus provides register-level access to serial servo buses.
//
// Calibration and jaw-sync logic talk to servos exclusively through the
// Bus interface, so they can run against real Feetech hardware or the
// in-memory Sim.
package bus

import (
	"context"
	"errors"
	"fmt"
)

// Register identifies a servo control-table register by its symbolic
// name and byte width.
type Register struct {
	Name string
	Size int // bytes
}

// STS3215 control-table registers used by calibration, motor setup and
// jaw sync.
var (
	RegMinPositionLimit = Register{"min_position_limit", 2}
	RegMaxPositionLimit = Register{"max_position_limit", 2}
	RegHomingOffset     = Register{"homing_offset", 2}
	RegOperatingMode    = Register{"operating_mode", 1}
	RegTorqueEnable     = Register{"torque_enable", 1}
	RegLock             = Register{"lock", 1}
	RegGoalPosition     = Register{"goal_position", 2}
	RegPresentPosition  = Register{"present_position", 2}

	RegReturnDelay     = Register{"return_delay_time", 1}
	RegMaxAcceleration = Register{"maximum_acceleration", 1}
	RegAcceleration    = Register{"acceleration", 1}
	RegPCoefficient    = Register{"p_coefficient", 1}
	RegICoefficient    = Register{"i_coefficient", 1}
	RegDCoefficient    = Register{"d_coefficient", 1}
)

var (
	// ErrDeviceNotFound indicates a servo did not respond to a scan or read.
	ErrDeviceNotFound = errors.New("servo not found")

	// ErrBusIO indicates a transient serial fault. Eligible for a bounded
	// retry at the adapter boundary, never inside calibration logic.
	ErrBusIO = errors.New("bus i/o error")
)

// ioError tags a driver failure as a transient bus fault while keeping
// the serial-level detail in the message.
func ioError(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %v", fmt.Sprintf(format, args...), ErrBusIO, err)
}

// Bus is the servo bus adapter contract. A Bus is exclusively owned by
// one session per serial port; Close must be called on every exit path.
type Bus interface {
	ReadRegister(ctx context.Context, id int, reg Register) (int, error)
	WriteRegister(ctx context.Context, id int, reg Register, value int) error
	Scan(ctx context.Context, first, last int) ([]int, error)
	SetTorque(ctx context.Context, id int, enabled bool) error
	Close() error
}

// Retrying wraps a Bus and retries operations that fail with a
// transient ErrBusIO, up to Attempts tries per operation.
type Retrying struct {
	Bus
	Attempts int
}

// WithRetry returns b wrapped with bounded retries for transient faults.
func WithRetry(b Bus, attempts int) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{Bus: b, Attempts: attempts}
}

func (r *Retrying) retry(ctx context.Context, op func() error) error {
	var err error
	for i := 0; i < r.Attempts; i++ {
		if err = op(); err == nil || !errors.Is(err, ErrBusIO) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("after %d attempts: %w", r.Attempts, err)
}

func (r *Retrying) ReadRegister(ctx context.Context, id int, reg Register) (int, error) {
	var v int
	err := r.retry(ctx, func() error {
		var err error
		v, err = r.Bus.ReadRegister(ctx, id, reg)
		return err
	})
	return v, err
}

func (r *Retrying) WriteRegister(ctx context.Context, id int, reg Register, value int) error {
	return r.retry(ctx, func() error {
		return r.Bus.WriteRegister(ctx, id, reg, value)
	})
}

func (r *Retrying) Scan(ctx context.Context, first, last int) ([]int, error) {
	var ids []int
	err := r.retry(ctx, func() error {
		var err error
		ids, err = r.Bus.Scan(ctx, first, last)
		return err
	})
	return ids, err
}

func (r *Retrying) SetTorque(ctx context.Context, id int, enabled bool) error {
	return r.retry(ctx, func() error {
		return r.Bus.SetTorque(ctx, id, enabled)
	})
}
