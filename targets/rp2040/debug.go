//go:build rp2040

package main

import (
	"machine"

	"stepdrive/core"
)

var debugUART *machine.UART

// InitDebugUART routes core debug output to UART0 on GP0 (TX) / GP1 (RX).
// Baud rate: 115200
func InitDebugUART() {
	debugUART = machine.UART0

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}

	core.SetDebugWriter(func(s string) {
		debugUART.Write([]byte(s))
		debugUART.Write([]byte("\r\n"))
	})
	core.InitAsyncDebug()
	core.SetDebugEnabled(true)

	core.DebugPrintln("=== RP2040 Debug UART Initialized ===")
}
