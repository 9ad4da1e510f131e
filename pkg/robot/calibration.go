package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrMalformedRecord indicates a calibration document with a missing
	// or mistyped field. Loading fails closed, nothing is defaulted.
	ErrMalformedRecord = errors.New("malformed calibration record")

	// ErrInvalidCalibrationState indicates a sweep that recorded no
	// motion for a joint (min == max).
	ErrInvalidCalibrationState = errors.New("invalid calibration state")
)

// MotorCalibration holds calibration data for a single motor. The JSON
// shape is consumed by LeRobot and must be preserved exactly, including
// integer (not floating point) offsets.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// ArmRole selects which downstream directory a calibration belongs to.
type ArmRole string

const (
	RoleFollower ArmRole = "follower"
	RoleLeader   ArmRole = "leader"
)

// DefaultCalibrationDir mirrors LeRobot's calibration cache layout so the
// files are interchangeable with it.
func DefaultCalibrationDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cache", "huggingface", "lerobot", "calibration")
}

// CalibrationPath returns the document path for an arm role and id,
// rooted at baseDir (DefaultCalibrationDir when empty).
func CalibrationPath(baseDir string, role ArmRole, armID string) string {
	if baseDir == "" {
		baseDir = DefaultCalibrationDir()
	}
	sub := filepath.Join("robots", "so101_follower")
	if role == RoleLeader {
		sub = filepath.Join("teleoperators", "so101_leader")
	}
	return filepath.Join(baseDir, sub, armID+".json")
}

// strictMotorCalibration mirrors MotorCalibration with pointer fields so
// missing keys are detectable after unmarshaling.
type strictMotorCalibration struct {
	ID           *int `json:"id"`
	DriveMode    *int `json:"drive_mode"`
	HomingOffset *int `json:"homing_offset"`
	RangeMin     *int `json:"range_min"`
	RangeMax     *int `json:"range_max"`
}

// ParseCalibration decodes a calibration document, failing closed on
// missing or mistyped fields.
func ParseCalibration(data []byte) (Calibration, error) {
	var raw map[string]strictMotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no joints", ErrMalformedRecord)
	}

	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		switch {
		case mc.ID == nil:
			return nil, fmt.Errorf("%w: joint %q missing id", ErrMalformedRecord, name)
		case mc.DriveMode == nil:
			return nil, fmt.Errorf("%w: joint %q missing drive_mode", ErrMalformedRecord, name)
		case mc.HomingOffset == nil:
			return nil, fmt.Errorf("%w: joint %q missing homing_offset", ErrMalformedRecord, name)
		case mc.RangeMin == nil:
			return nil, fmt.Errorf("%w: joint %q missing range_min", ErrMalformedRecord, name)
		case mc.RangeMax == nil:
			return nil, fmt.Errorf("%w: joint %q missing range_max", ErrMalformedRecord, name)
		}
		if *mc.DriveMode != 0 && *mc.DriveMode != 1 {
			return nil, fmt.Errorf("%w: joint %q drive_mode %d not 0|1", ErrMalformedRecord, name, *mc.DriveMode)
		}
		if *mc.RangeMin > *mc.RangeMax {
			return nil, fmt.Errorf("%w: joint %q range_min %d > range_max %d",
				ErrMalformedRecord, name, *mc.RangeMin, *mc.RangeMax)
		}
		cal[MotorName(name)] = MotorCalibration{
			ID:           *mc.ID,
			DriveMode:    *mc.DriveMode,
			HomingOffset: *mc.HomingOffset,
			RangeMin:     *mc.RangeMin,
			RangeMax:     *mc.RangeMax,
		}
	}
	return cal, nil
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}
	cal, err := ParseCalibration(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cal, nil
}

// Encode serializes the calibration. Decoding the result with
// ParseCalibration yields the record back field-for-field.
func (c Calibration) Encode() ([]byte, error) {
	return json.MarshalIndent(c, "", "    ")
}

// Save writes the calibration atomically: the document appears complete
// at path or not at all, even if the process dies mid-write.
func (c Calibration) Save(path string) error {
	data, err := c.Encode()
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".calibration-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write calibration: %w", err)
	}
	return nil
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// Clamp constrains a target position to the motor's calibrated range.
func (c MotorCalibration) Clamp(pos int) int {
	if pos < c.RangeMin {
		return c.RangeMin
	}
	if pos > c.RangeMax {
		return c.RangeMax
	}
	return pos
}

// Midpoint returns the center of the calibrated range.
func (c MotorCalibration) Midpoint() int {
	return (c.RangeMin + c.RangeMax) / 2
}
