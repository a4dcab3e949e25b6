//go:build rp2040

package main

import (
	"errors"
	"machine"

	"stepdrive/core"
)

// RP2040 has GPIO0-GPIO29
const numGPIO = 30

var errPinNotConfigured = errors.New("gpio pin not configured as output")

// RPGPIODriver implements the GPIODriver interface for RP2040.
// SetPin is called from the alarm interrupt, so pin lookup is a fixed
// array instead of a map.
type RPGPIODriver struct {
	configured [numGPIO]bool
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= numGPIO {
		return errors.New("gpio pin out of range")
	}
	if d.configured[pin] {
		// Already configured, this is OK
		return nil
	}

	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured[pin] = true
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= numGPIO || !d.configured[pin] {
		return errPinNotConfigured
	}
	machine.Pin(pin).Set(value)
	return nil
}
