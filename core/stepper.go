package core

// Step motor driver for two-wire (step/dir) drivers with a power enable line.
// Lock-based operations are serialized by a bounded-wait access lock;
// AlarmStop bypasses the lock so it can be raised from interrupt handlers.

import (
	"sync/atomic"
	"time"
)

const (
	// Maximum number of configured step motors
	MaxStepMotors = 8
)

// StepMotorState is the driver lifecycle state
type StepMotorState uint32

const (
	StateOff       StepMotorState = iota // No current on windings, rotor free
	StateIdle                            // Windings energized, rotor held
	StateWork                            // Emitting step pulses
	StateAlarmStop                       // Emergency stop latched, power removed
)

func (s StepMotorState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateIdle:
		return "idle"
	case StateWork:
		return "work"
	case StateAlarmStop:
		return "alarm_stop"
	default:
		return "unknown"
	}
}

// PowerMode selects whether current is applied to the windings
type PowerMode uint8

const (
	PowerOff PowerMode = iota
	PowerOn
)

// Direction selects the rotor rotation direction
type Direction uint8

const (
	DirectionForward Direction = iota
	DirectionBackward
)

// StepMotorConfig is the immutable configuration of a step motor
type StepMotorConfig struct {
	PowerPin GPIOPin // Winding power enable output
	DirPin   GPIOPin // Direction output
	StepPin  GPIOPin // Step pulse output

	RisingDelay  uint32 // Step line high hold time in µs
	FallingDelay uint32 // Step line low hold time in µs

	DirForwardLevel bool // Direction line level for forward rotation
	PowerOffLevel   bool // Power line level that removes winding current

	// LockTimeout bounds the access lock wait.
	// Zero selects DefaultLockTimeout.
	LockTimeout time.Duration
}

// StepMotor drives a single step/dir stepper motor
type StepMotor struct {
	OID uint8

	cfg   StepMotorConfig
	gpio  GPIODriver
	delay Delayer
	lock  *accessLock

	// Read by the pulse loop, written by AlarmStop from interrupt context
	state atomic.Uint32

	totalSteps atomic.Uint32
}

// NewStepMotor initializes a step motor: the motor starts powered off with
// the direction line at its reset level.
func NewStepMotor(oid uint8, cfg StepMotorConfig, gpio GPIODriver, delay Delayer) *StepMotor {
	m := &StepMotor{
		OID:   oid,
		cfg:   cfg,
		gpio:  gpio,
		delay: delay,
		lock:  newAccessLock(cfg.LockTimeout),
	}
	m.state.Store(uint32(StateOff))

	for _, pin := range [...]GPIOPin{cfg.PowerPin, cfg.DirPin, cfg.StepPin} {
		if err := gpio.ConfigureOutput(pin); err != nil {
			DebugPrintln("[STEP] configure pin " + utoa(uint32(pin)) + " failed: " + err.Error())
		}
	}

	m.writePin(cfg.PowerPin, cfg.PowerOffLevel)
	m.writePin(cfg.DirPin, false)
	m.writePin(cfg.StepPin, false)

	DebugPrintln("[STEP] motor " + itoa(int(oid)) + " initialized: power=" + utoa(uint32(cfg.PowerPin)) +
		" dir=" + utoa(uint32(cfg.DirPin)) + " step=" + utoa(uint32(cfg.StepPin)))
	return m
}

// Config returns the motor configuration
func (m *StepMotor) Config() StepMotorConfig {
	return m.cfg
}

// TotalSteps returns the number of pulses emitted since initialization
func (m *StepMotor) TotalSteps() uint32 {
	return m.totalSteps.Load()
}

// TurnPower applies or removes winding current.
// Returns ErrBusy if the access lock is not acquired in time and
// ErrBlocked while alarm stop is latched.
func (m *StepMotor) TurnPower(mode PowerMode) error {
	if !m.lock.acquire() {
		return ErrBusy
	}
	defer m.lock.release()

	irq := disableInterrupts()
	if m.loadState() == StateAlarmStop {
		restoreInterrupts(irq)
		return ErrBlocked
	}

	next := StateOff
	if mode == PowerOn {
		next = StateIdle
	}
	m.writePin(m.cfg.PowerPin, m.powerLevel(next))
	m.state.Store(uint32(next))
	recordEvent(EvtPower, m.OID, uint32(next), 0)
	restoreInterrupts(irq)

	return nil
}

// SetDirection sets the direction line for the next run
func (m *StepMotor) SetDirection(dir Direction) error {
	if !m.lock.acquire() {
		return ErrBusy
	}
	defer m.lock.release()

	irq := disableInterrupts()
	if m.loadState() == StateAlarmStop {
		restoreInterrupts(irq)
		return ErrBlocked
	}

	level := m.cfg.DirForwardLevel
	if dir == DirectionBackward {
		level = !level
	}
	m.writePin(m.cfg.DirPin, level)
	restoreInterrupts(irq)

	return nil
}

// AlarmStop removes winding power and latches the alarm stop state.
// It never takes the access lock and is safe to call from an interrupt
// handler. A run in progress stops before its next pulse.
func (m *StepMotor) AlarmStop() {
	irq := disableInterrupts()
	prev := m.state.Swap(uint32(StateAlarmStop))
	m.writePin(m.cfg.PowerPin, m.cfg.PowerOffLevel)
	recordEvent(EvtAlarmStop, m.OID, prev, 0)
	restoreInterrupts(irq)
}

// RecoverFromAlarm leaves the alarm stop state, re-energizing the windings.
// It is a no-op when no alarm stop is latched.
func (m *StepMotor) RecoverFromAlarm() error {
	if !m.lock.acquire() {
		return ErrBusy
	}
	defer m.lock.release()

	irq := disableInterrupts()
	if m.loadState() == StateAlarmStop {
		m.writePin(m.cfg.PowerPin, m.powerLevel(StateIdle))
		m.state.Store(uint32(StateIdle))
		recordEvent(EvtRecover, m.OID, 0, 0)
	}
	restoreInterrupts(irq)

	return nil
}

// Run emits steps pulses at a fixed cadence of RisingDelay+FallingDelay µs.
// It blocks until all pulses are emitted or an alarm stop is observed, and
// holds the access lock the whole time. counter, if not nil, is
// incremented once per emitted pulse.
func (m *StepMotor) Run(steps uint32, counter *uint32) error {
	if !m.lock.acquire() {
		return ErrBusy
	}

	// CAS so an alarm raised from another core cannot be overwritten
	irq := disableInterrupts()
	if !m.state.CompareAndSwap(uint32(StateIdle), uint32(StateWork)) {
		restoreInterrupts(irq)
		m.lock.release()
		return ErrInvalidState
	}
	recordEvent(EvtRunStart, m.OID, steps, 0)
	restoreInterrupts(irq)

	rising := m.cfg.RisingDelay
	falling := m.cfg.FallingDelay
	var emitted uint32

	for emitted < steps {
		if m.loadState() == StateAlarmStop {
			return m.abortRun(emitted)
		}

		m.writePin(m.cfg.StepPin, true)
		m.delay.DelayMicroseconds(rising)
		m.writePin(m.cfg.StepPin, false)
		m.delay.DelayMicroseconds(falling)

		emitted++
		m.totalSteps.Add(1)
		if counter != nil {
			atomic.AddUint32(counter, 1)
		}
	}

	irq = disableInterrupts()
	if !m.state.CompareAndSwap(uint32(StateWork), uint32(StateIdle)) {
		// Alarm raised during the final pulse
		restoreInterrupts(irq)
		return m.abortRun(emitted)
	}
	recordEvent(EvtRunDone, m.OID, emitted, 0)
	restoreInterrupts(irq)

	m.lock.release()
	return nil
}

// State returns the lifecycle state. Like every lock-based operation it
// returns ErrBusy while a run holds the access lock.
func (m *StepMotor) State() (StepMotorState, error) {
	if !m.lock.acquire() {
		return StateOff, ErrBusy
	}
	s := m.loadState()
	m.lock.release()
	return s, nil
}

// abortRun resets the direction line and releases the access lock.
// The caller holds the lock and has observed the alarm stop.
func (m *StepMotor) abortRun(emitted uint32) error {
	m.writePin(m.cfg.DirPin, false)

	irq := disableInterrupts()
	recordEvent(EvtRunAbort, m.OID, emitted, 0)
	restoreInterrupts(irq)

	m.lock.release()
	return ErrAborted
}

func (m *StepMotor) loadState() StepMotorState {
	return StepMotorState(m.state.Load())
}

// powerLevel returns the power line level for a lifecycle state
func (m *StepMotor) powerLevel(s StepMotorState) bool {
	if s == StateIdle || s == StateWork {
		return !m.cfg.PowerOffLevel
	}
	return m.cfg.PowerOffLevel
}

func (m *StepMotor) writePin(pin GPIOPin, value bool) {
	if err := m.gpio.SetPin(pin, value); err != nil {
		DebugAsync("[STEP] set pin " + utoa(uint32(pin)) + " failed: " + err.Error())
	}
}
