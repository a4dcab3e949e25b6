package core

// Delayer blocks the caller for a number of microseconds.
// Implementations busy-wait: they never yield to the scheduler and are
// callable from interrupt context.
type Delayer interface {
	DelayMicroseconds(us uint32)
}

// DelayFunc adapts a plain function to the Delayer interface
type DelayFunc func(us uint32)

func (f DelayFunc) DelayMicroseconds(us uint32) {
	f(us)
}

var delayer Delayer

// SetDelayer is called by target-specific code to register its delay source
func SetDelayer(d Delayer) {
	delayer = d
}

// MustDelay returns the configured delay source or panics if missing
func MustDelay() Delayer {
	if delayer == nil {
		panic("delay source not configured")
	}
	return delayer
}
