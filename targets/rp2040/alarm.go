//go:build rp2040

package main

import (
	"machine"

	"stepdrive/core"
)

// InitAlarmButton latches alarm stop on every motor when the button
// pulls pin low. The handler runs in interrupt context.
func InitAlarmButton(pin machine.Pin) {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	err := pin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		core.AlarmStopAll()
	})
	if err != nil {
		core.DebugPrintln("[BOOT] alarm button interrupt: " + err.Error())
	}
}
