package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/armtalk/pkg/bus"
	"github.com/gwillem/armtalk/pkg/robot"
)

type SetupCommand struct {
	Port string `long:"port" required:"true" description:"Serial port of the arm"`
	Role string `long:"role" default:"follower" choice:"follower" choice:"leader" description:"Arm role, selects the PID profile"`
}

const setupTargetBaud = 1_000_000

// Factory servos may still sit at any of these rates.
var setupBaudRates = []int{
	1_000_000, 500_000, 250_000, 128_000, 115_200, 57_600, 38_400, 19_200,
}

func (c *SetupCommand) Execute(args []string) error {
	role := robot.ArmRole(c.Role)

	fmt.Println(headerStyle.Render("Armtalk Motor Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━"))
	fmt.Printf("  Port: %s\n  Role: %s\n\n", c.Port, c.Role)
	fmt.Println("Six motors are configured one at a time. Connect each motor")
	fmt.Println("by itself when prompted; it gets its ID, the 1 Mbps baud rate")
	fmt.Println("and the standard register settings.")
	fmt.Println()

	order := robot.SetupOrder()
	ids := make(map[robot.MotorName]int, len(robot.AllMotors()))
	for i, name := range robot.AllMotors() {
		ids[name] = i + 1
	}

	for _, name := range order {
		targetID := ids[name]
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ %s (ID %d) ━━━", name, targetID)))
		waitForUser(fmt.Sprintf("Connect ONLY the %s motor.", name))

		if err := c.setupMotor(targetID, role); err != nil {
			return fmt.Errorf("setup %s: %w", name, err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("%s configured as ID %d.", name, targetID)))
		fmt.Println()
	}

	fmt.Println(successStyle.Render("All motors configured!"))
	fmt.Println("Next: " + headerStyle.Render(
		fmt.Sprintf("armtalk calibrate --port %s --role %s --id <name>", c.Port, c.Role)))
	return nil
}

func (c *SetupCommand) setupMotor(targetID int, role robot.ArmRole) error {
	ctx := context.Background()

	fmt.Println("Scanning for the motor...")
	fb, found, err := findSingleMotor(ctx, c.Port)
	if err != nil {
		return err
	}
	fmt.Printf("Found servo ID %d (model %v).\n", found.ID, found.Model)

	// EPROM writes are rejected while torque is on or the lock is set.
	servo := feetech.NewServo(fb, found.ID, found.Model)
	if err := servo.Disable(ctx); err != nil {
		fb.Close()
		return fmt.Errorf("disable torque: %w", err)
	}
	if err := servo.WriteRegister(ctx, bus.RegLock.Name, []byte{0}); err != nil {
		fb.Close()
		return fmt.Errorf("unlock eprom: %w", err)
	}

	if found.ID != targetID {
		fmt.Printf("Setting ID %d -> %d\n", found.ID, targetID)
		if err := servo.SetID(ctx, targetID); err != nil {
			fb.Close()
			return fmt.Errorf("set id: %w", err)
		}
		servo = feetech.NewServo(fb, targetID, found.Model)
	}

	if err := servo.SetBaudRate(ctx, setupTargetBaud); err != nil {
		fb.Close()
		return fmt.Errorf("set baud rate: %w", err)
	}
	if err := fb.Close(); err != nil {
		return err
	}

	// Reconnect at the target rate and verify before touching EPROM again.
	b, err := bus.OpenFeetech(c.Port)
	if err != nil {
		return err
	}
	defer b.Close()

	found2, err := b.Scan(ctx, targetID, targetID)
	if err != nil {
		return err
	}
	if len(found2) != 1 {
		return fmt.Errorf("servo %d not responding after ID/baud change: %w", targetID, bus.ErrDeviceNotFound)
	}

	return robot.Configure(ctx, b, targetID, role)
}

// findSingleMotor walks the candidate baud rates until exactly one servo
// answers. The returned bus is open at that rate and owned by the caller.
func findSingleMotor(ctx context.Context, port string) (*feetech.Bus, feetech.FoundServo, error) {
	for _, baud := range setupBaudRates {
		fb, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: baud,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			return nil, feetech.FoundServo{}, fmt.Errorf("open bus on %s: %w", port, err)
		}

		// Factory default ID is 1 but reused servos may sit anywhere low.
		servos, err := fb.Scan(ctx, 0, 10)
		if err != nil || len(servos) == 0 {
			fb.Close()
			continue
		}
		if len(servos) > 1 {
			fb.Close()
			return nil, feetech.FoundServo{}, fmt.Errorf("found %d servos at %d baud, connect only one", len(servos), baud)
		}
		fmt.Printf("Motor answered at %d baud.\n", baud)
		return fb, servos[0], nil
	}
	return nil, feetech.FoundServo{}, fmt.Errorf("no motor found on %s: %w", port, bus.ErrDeviceNotFound)
}
