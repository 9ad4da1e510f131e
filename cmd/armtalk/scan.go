package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/gwillem/armtalk/pkg/bus"
)

type ScanCommand struct{}

func (c *ScanCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Scanning for robot arms..."))
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	found := 0
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		ids, err := probePort(port)
		switch {
		case err != nil:
			fmt.Printf("  %s: %s\n", port, dimStyle.Render("no response"))
		case len(ids) == 6:
			fmt.Printf("  %s: %s\n", port, successStyle.Render("SO-101 arm (servos 1-6)"))
			found++
		case len(ids) > 0:
			fmt.Printf("  %s: servos %v (not a full SO-101 arm)\n", port, ids)
		default:
			fmt.Printf("  %s: %s\n", port, dimStyle.Render("no servos"))
		}
	}

	fmt.Println()
	if found == 0 {
		fmt.Println("No SO-101 arms found. Make sure the arm is connected and powered on.")
	} else {
		fmt.Printf("Found %d arm(s). Calibrate with: %s\n",
			found, headerStyle.Render("armtalk calibrate --port <port> --id <name>"))
	}
	return nil
}

func probePort(port string) ([]int, error) {
	b, err := bus.OpenFeetech(port)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return b.Scan(ctx, 1, 6)
}
