//go:build rp2040

package main

import (
	"machine"
	"time"

	"stepdrive/core"
)

// Command link errors recovered by the main loop
var msgerrors uint32

func main() {
	// CRITICAL: Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	// USB CDC is the command link
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return
	}

	InitDebugUART()

	// Bootstrap commands first: identify must keep IDs 0 and 1
	core.InitCoreCommands()
	core.RegisterStepMotorCommands()

	core.SetGPIODriver(NewRPGPIODriver())
	core.SetDelayer(PrecisionDelay{})

	if Board.ConfigureOnBoot {
		if _, err := core.ConfigureStepMotor(0, Board.Motor); err != nil {
			core.DebugPrintln("[BOOT] board motor: " + err.Error())
		}
	}

	InitAlarmButton(Board.AlarmPin)

	worker := core.NewRunWorker(1)
	core.SetRunWorker(worker)
	worker.Start()

	link := core.NewSerialLink(machine.Serial)

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					core.DumpEventRing()
				}
			}()

			link.Poll()
		}()

		// Yield to the run worker and debug output goroutines
		time.Sleep(10 * time.Microsecond)
	}
}
