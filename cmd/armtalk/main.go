package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Scan      ScanCommand      `command:"scan" description:"List serial ports and discover SO-101 arms"`
	Setup     SetupCommand     `command:"setup" description:"Assign servo IDs and apply the standard motor configuration"`
	Calibrate CalibrateCommand `command:"calibrate" description:"Record homing offsets and range of motion"`
	Talk      TalkCommand      `command:"talk" description:"Speak text and sync the gripper jaw to it"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armtalk - calibrate an SO-101 arm and make it talk"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
