//go:build rp2040

package main

import (
	"time"

	"tinygo.org/x/drivers/delay"
)

// PrecisionDelay busy-waits on the CPU cycle count. It never yields, so
// step timing is not disturbed by the scheduler.
type PrecisionDelay struct{}

func (PrecisionDelay) DelayMicroseconds(us uint32) {
	delay.Sleep(time.Duration(us) * time.Microsecond)
}
