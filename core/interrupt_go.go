//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// criticalMu stands in for interrupt masking on regular Go, where alarm
// stops arrive from goroutines instead of interrupt handlers.
var criticalMu sync.Mutex

// disableInterrupts enters the critical section and returns the previous state
func disableInterrupts() State {
	criticalMu.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	criticalMu.Unlock()
}
