package robot

import (
	"context"
	"fmt"

	"github.com/gwillem/armtalk/pkg/bus"
)

// Standard SO-101 motor settings, matching what LeRobot's configure
// step writes: minimal response delay, maximum acceleration, position
// mode, and on followers a softened P gain to avoid shakiness.
const (
	configReturnDelay     = 0
	configMaxAcceleration = 254
	configAcceleration    = 254
	configOperatingMode   = 0

	followerPCoefficient = 16
	followerICoefficient = 0
	followerDCoefficient = 32
)

// SetupOrder returns the motors in first-time wiring order: the daisy
// chain is assembled from the gripper down to the base.
func SetupOrder() []MotorName {
	all := AllMotors()
	order := make([]MotorName, len(all))
	for i, name := range all {
		order[len(all)-1-i] = name
	}
	return order
}

// Configure applies the standard register settings to one servo. Torque
// is released and the EPROM unlocked first; EPROM writes are rejected by
// the firmware otherwise.
func Configure(ctx context.Context, b bus.Bus, id int, role ArmRole) error {
	if err := b.SetTorque(ctx, id, false); err != nil {
		return fmt.Errorf("disable torque servo %d: %w", id, err)
	}
	type regWrite struct {
		reg   bus.Register
		value int
	}
	writes := []regWrite{
		{bus.RegLock, 0},
		{bus.RegReturnDelay, configReturnDelay},
		{bus.RegMaxAcceleration, configMaxAcceleration},
		{bus.RegAcceleration, configAcceleration},
		{bus.RegOperatingMode, configOperatingMode},
	}
	if role == RoleFollower {
		writes = append(writes,
			regWrite{bus.RegPCoefficient, followerPCoefficient},
			regWrite{bus.RegICoefficient, followerICoefficient},
			regWrite{bus.RegDCoefficient, followerDCoefficient},
		)
	}
	for _, w := range writes {
		if err := b.WriteRegister(ctx, id, w.reg, w.value); err != nil {
			return fmt.Errorf("write %s servo %d: %w", w.reg.Name, id, err)
		}
	}
	return nil
}
