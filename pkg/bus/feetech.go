package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// SO-101 arms run Feetech STS3215 servos at 1 Mbps.
const (
	feetechBaudRate = 1_000_000
	feetechTimeout  = 100 * time.Millisecond

	// Encoder modulus of the STS3215 12-bit magnetic encoder.
	Modulus = 4096
)

var _ Bus = (*FeetechBus)(nil)

// FeetechBus adapts a Feetech serial bus to the Bus interface.
type FeetechBus struct {
	bus    *feetech.Bus
	servos map[int]*feetech.Servo
	found  map[int]feetech.FoundServo
}

// OpenFeetech opens the serial port and takes exclusive ownership of it
// for the lifetime of the returned bus.
func OpenFeetech(port string) (*FeetechBus, error) {
	fb, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: feetechBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  feetechTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus on %s: %w", port, err)
	}
	return &FeetechBus{
		bus:    fb,
		servos: make(map[int]*feetech.Servo),
		found:  make(map[int]feetech.FoundServo),
	}, nil
}

// Close releases the serial port.
func (b *FeetechBus) Close() error {
	return b.bus.Close()
}

// Scan pings servo IDs in [first, last] and returns the ones that answered.
func (b *FeetechBus) Scan(ctx context.Context, first, last int) ([]int, error) {
	servos, err := b.bus.Scan(ctx, first, last)
	if err != nil {
		return nil, ioError(err, "scan %d-%d", first, last)
	}
	ids := make([]int, 0, len(servos))
	for _, s := range servos {
		b.found[s.ID] = s
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (b *FeetechBus) servo(ctx context.Context, id int) (*feetech.Servo, error) {
	if s, ok := b.servos[id]; ok {
		return s, nil
	}
	fs, ok := b.found[id]
	if !ok {
		// Not seen yet, ping just this ID.
		if _, err := b.Scan(ctx, id, id); err != nil {
			return nil, err
		}
		if fs, ok = b.found[id]; !ok {
			return nil, fmt.Errorf("servo %d: %w", id, ErrDeviceNotFound)
		}
	}
	s := feetech.NewServo(b.bus, fs.ID, fs.Model)
	b.servos[id] = s
	return s, nil
}

// ReadRegister reads a control-table register from one servo.
func (b *FeetechBus) ReadRegister(ctx context.Context, id int, reg Register) (int, error) {
	s, err := b.servo(ctx, id)
	if err != nil {
		return 0, err
	}
	if reg == RegPresentPosition {
		pos, err := s.Position(ctx)
		if err != nil {
			return 0, ioError(err, "read position servo %d", id)
		}
		return pos, nil
	}
	data, err := s.ReadRegister(ctx, reg.Name)
	if err != nil {
		return 0, ioError(err, "read %s servo %d", reg.Name, id)
	}
	v := 0
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | int(data[i])
	}
	if reg == RegHomingOffset {
		v = DecodeSignMagnitude(v)
	}
	return v, nil
}

// WriteRegister writes a control-table register on one servo. Homing
// offsets are converted to the firmware's sign-magnitude encoding.
func (b *FeetechBus) WriteRegister(ctx context.Context, id int, reg Register, value int) error {
	s, err := b.servo(ctx, id)
	if err != nil {
		return err
	}
	if reg == RegGoalPosition {
		// 0 ms means move at full speed.
		if err := s.SetPositionWithTime(ctx, value, 0); err != nil {
			return ioError(err, "write goal servo %d", id)
		}
		return nil
	}
	if reg == RegHomingOffset {
		value = EncodeSignMagnitude(value)
	}
	data := make([]byte, reg.Size)
	for i := range data {
		data[i] = byte(value >> (8 * i)) // little-endian
	}
	if err := s.WriteRegister(ctx, reg.Name, data); err != nil {
		return ioError(err, "write %s servo %d", reg.Name, id)
	}
	return nil
}

// SetTorque enables or disables torque on one servo.
func (b *FeetechBus) SetTorque(ctx context.Context, id int, enabled bool) error {
	s, err := b.servo(ctx, id)
	if err != nil {
		return err
	}
	if enabled {
		err = s.Enable(ctx)
	} else {
		err = s.Disable(ctx)
	}
	if err != nil {
		return ioError(err, "set torque servo %d", id)
	}
	return nil
}

// EncodeSignMagnitude converts a signed homing offset into the STS3215
// register encoding: bit 11 carries the sign, bits 0-10 the magnitude.
func EncodeSignMagnitude(offset int) int {
	if offset < 0 {
		return 1<<11 | (-offset)&0x7FF
	}
	return offset & 0x7FF
}

// DecodeSignMagnitude is the inverse of EncodeSignMagnitude.
func DecodeSignMagnitude(encoded int) int {
	magnitude := encoded & 0x7FF
	if encoded&(1<<11) != 0 {
		return -magnitude
	}
	return magnitude
}
