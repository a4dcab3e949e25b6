package core

import "time"

const (
	// DefaultLockTimeout bounds how long an operation waits for the access lock
	DefaultLockTimeout = 10 * time.Millisecond

	// LockNoWait makes operations try the access lock exactly once
	LockNoWait time.Duration = -1

	// LockWaitForever makes operations block until the access lock is free
	LockWaitForever time.Duration = 1<<63 - 1
)

// accessLock is a mutex with bounded-wait acquisition
type accessLock struct {
	sem     chan struct{}
	timeout time.Duration
}

func newAccessLock(timeout time.Duration) *accessLock {
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}
	return &accessLock{
		sem:     make(chan struct{}, 1),
		timeout: timeout,
	}
}

// acquire takes the lock, giving up after the configured wait bound
func (l *accessLock) acquire() bool {
	// Fast path: uncontended
	select {
	case l.sem <- struct{}{}:
		return true
	default:
	}

	switch {
	case l.timeout < 0:
		return false
	case l.timeout == LockWaitForever:
		l.sem <- struct{}{}
		return true
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// release gives the lock back; the caller must hold it
func (l *accessLock) release() {
	<-l.sem
}

// Wire form of StepMotorConfig.LockTimeout in config_step_motor:
// negative for LockNoWait, 0 for the default, LockWireForever for
// LockWaitForever, otherwise whole milliseconds.
const LockWireForever int32 = 1<<31 - 1

// LockTimeoutFromWire decodes a lock_timeout_ms argument
func LockTimeoutFromWire(ms int32) time.Duration {
	switch {
	case ms < 0:
		return LockNoWait
	case ms == LockWireForever:
		return LockWaitForever
	default:
		return time.Duration(ms) * time.Millisecond
	}
}

// LockTimeoutToWire encodes a lock timeout for config_step_motor.
// Positive timeouts are rounded up to whole milliseconds.
func LockTimeoutToWire(d time.Duration) (int32, error) {
	switch {
	case d < 0:
		return -1, nil
	case d == LockWaitForever:
		return LockWireForever, nil
	}

	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms >= time.Duration(LockWireForever) {
		return 0, ErrLockTimeoutRange
	}
	return int32(ms), nil
}
