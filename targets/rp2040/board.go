//go:build rp2040

package main

import (
	"machine"

	"stepdrive/core"
)

// BoardProfile is the compiled-in wiring of a board
type BoardProfile struct {
	// ConfigureOnBoot creates motor 0 from Motor at startup, so the board
	// works without a host sending config_step_motor
	ConfigureOnBoot bool
	Motor           core.StepMotorConfig

	// Normally-open alarm button to ground
	AlarmPin machine.Pin
}

// Board wiring for a Pico driving an A4988/DRV8825 style module:
// EN on GP2 (active low), DIR on GP3, STEP on GP4, alarm button on GP15
var Board = BoardProfile{
	ConfigureOnBoot: true,
	Motor: core.StepMotorConfig{
		PowerPin:        2,
		DirPin:          3,
		StepPin:         4,
		RisingDelay:     500,
		FallingDelay:    500,
		DirForwardLevel: true,
		PowerOffLevel:   true,
	},
	AlarmPin: machine.GPIO15,
}
