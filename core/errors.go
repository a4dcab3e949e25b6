package core

// Error is a constant driver error
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrBusy means the access lock was not acquired within the wait bound.
	// Transient: callers are expected to retry.
	ErrBusy = Error("step motor busy")

	// ErrBlocked means the motor is latched in alarm stop
	ErrBlocked = Error("step motor blocked by alarm stop")

	// ErrLockTimeoutRange means a lock timeout has no config_step_motor encoding
	ErrLockTimeoutRange = Error("lock timeout out of range")

	// ErrInvalidState means a run was requested while the motor was not idle
	ErrInvalidState = Error("step motor not idle")

	// ErrAborted means a run was interrupted by an alarm stop.
	// The step counter holds the pulses emitted before the abort.
	ErrAborted = Error("step motor run aborted by alarm stop")

	ErrUnknownMotor      = Error("step motor not configured")
	ErrOIDRange          = Error("step motor oid exceeds maximum")
	ErrAlreadyConfigured = Error("step motor already configured")
)

// Wire status codes reported in step_motor_status / step_motor_run_result
const (
	StatusOK uint8 = iota
	StatusBusy
	StatusBlocked
	StatusInvalidState
	StatusAborted
	StatusUnknownMotor
	StatusFault
)

// StatusCode maps a driver error to its wire status code
func StatusCode(err error) uint8 {
	switch err {
	case nil:
		return StatusOK
	case ErrBusy:
		return StatusBusy
	case ErrBlocked:
		return StatusBlocked
	case ErrInvalidState:
		return StatusInvalidState
	case ErrAborted:
		return StatusAborted
	case ErrUnknownMotor:
		return StatusUnknownMotor
	default:
		return StatusFault
	}
}

// StatusError maps a wire status code back to the driver error
func StatusError(code uint8) error {
	switch code {
	case StatusOK:
		return nil
	case StatusBusy:
		return ErrBusy
	case StatusBlocked:
		return ErrBlocked
	case StatusInvalidState:
		return ErrInvalidState
	case StatusAborted:
		return ErrAborted
	case StatusUnknownMotor:
		return ErrUnknownMotor
	default:
		return Error("step motor error status " + utoa(uint32(code)))
	}
}
