// Package armtalk calibrates SO-101 robot arms and makes them talk.
//
// It records per-joint homing offsets and range-of-motion limits in a
// LeRobot-compatible calibration file, and drives the gripper as a jaw
// synchronized to a speech amplitude envelope.
//
// # Installation
//
//	go install github.com/gwillem/armtalk/cmd/armtalk@latest
//
// # Usage
//
// Find your arm, calibrate it, then make it speak:
//
//	armtalk scan
//	armtalk setup --port /dev/ttyUSB0 --role follower
//	armtalk calibrate --port /dev/ttyUSB0 --role follower --id my_arm
//	armtalk talk --port /dev/ttyUSB0 --id my_arm "Hello, I am a robot arm"
//
// The setup step is only needed once per arm, when the servos still
// carry their factory IDs.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armtalk: CLI with scan, setup, calibrate and talk commands
//   - pkg/bus: servo bus adapter (Feetech serial + simulator)
//   - pkg/robot: homing offsets, range tracking, calibration records
//   - pkg/audio: PCM decoding and amplitude envelope extraction
//   - pkg/jaw: jaw sync policies and the talking controller
//   - pkg/speech: text-to-speech and audio playback glue
package armtalk
