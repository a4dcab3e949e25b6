package serial

import (
	"io"
)

// Port is a serial connection to the firmware.
// Implementations: native serial (github.com/tarm/serial) and in-memory
// pipes in tests.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data not yet transmitted or read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration used for the firmware's USB link
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
