package mcu

import (
	"time"

	"stepdrive/core"
)

// StepMotor drives one firmware step motor by OID
type StepMotor struct {
	mcu *MCU
	OID uint8

	// RunTimeout bounds the wait for a run result
	RunTimeout time.Duration
}

// StepMotor returns a handle to the motor with the given OID
func (m *MCU) StepMotor(oid uint8) *StepMotor {
	return &StepMotor{mcu: m, OID: oid, RunTimeout: time.Minute}
}

// ConfigureStepMotor creates a motor on the firmware
func (m *MCU) ConfigureStepMotor(oid uint8, cfg core.StepMotorConfig) error {
	timeoutMs, err := core.LockTimeoutToWire(cfg.LockTimeout)
	if err != nil {
		return err
	}
	err = m.SendCommand("config_step_motor",
		uint32(oid),
		uint32(cfg.PowerPin),
		uint32(cfg.DirPin),
		uint32(cfg.StepPin),
		cfg.RisingDelay,
		cfg.FallingDelay,
		boolArg(cfg.DirForwardLevel),
		boolArg(cfg.PowerOffLevel),
		uint32(timeoutMs),
	)
	if err != nil {
		return err
	}
	return m.StepMotor(oid).waitStatus()
}

// EmergencyStop latches alarm stop on every motor
func (m *MCU) EmergencyStop() error {
	return m.SendCommand("emergency_stop")
}

// Power turns winding power on or off
func (s *StepMotor) Power(on bool) error {
	return s.command("step_motor_power", boolArg(on))
}

// SetDirection sets the direction for the next run
func (s *StepMotor) SetDirection(dir core.Direction) error {
	return s.command("step_motor_dir", uint32(dir))
}

// AlarmStop latches alarm stop
func (s *StepMotor) AlarmStop() error {
	return s.command("step_motor_alarm_stop")
}

// Recover clears a latched alarm stop
func (s *StepMotor) Recover() error {
	return s.command("step_motor_recover")
}

// Run emits steps pulses and waits for the run to end. count is the
// number of pulses emitted, also when the run was aborted.
func (s *StepMotor) Run(steps uint32) (count uint32, err error) {
	if err := s.command("step_motor_run", steps); err != nil {
		return 0, err
	}

	resp, err := s.mcu.WaitResponse("step_motor_run_result", s.match(), s.RunTimeout)
	if err != nil {
		return 0, err
	}
	return resp.Args["count"], core.StatusError(uint8(resp.Args["status"]))
}

// State returns the lifecycle state and the total steps emitted
func (s *StepMotor) State() (core.StepMotorState, uint32, error) {
	if err := s.mcu.SendCommand("step_motor_get_state", uint32(s.OID)); err != nil {
		return 0, 0, err
	}

	// An unknown OID is answered with step_motor_status
	resp, err := s.mcu.WaitResponse("step_motor_state", s.match(), DefaultResponseTimeout)
	if err != nil {
		if statusErr := s.takeStatus(); statusErr != nil {
			return 0, 0, statusErr
		}
		return 0, 0, err
	}
	if err := core.StatusError(uint8(resp.Args["status"])); err != nil {
		return 0, 0, err
	}
	return core.StepMotorState(resp.Args["state"]), resp.Args["total_steps"], nil
}

func (s *StepMotor) command(name string, args ...uint32) error {
	if err := s.mcu.SendCommand(name, append([]uint32{uint32(s.OID)}, args...)...); err != nil {
		return err
	}
	return s.waitStatus()
}

func (s *StepMotor) waitStatus() error {
	resp, err := s.mcu.WaitResponse("step_motor_status", s.match(), DefaultResponseTimeout)
	if err != nil {
		return err
	}
	return core.StatusError(uint8(resp.Args["status"]))
}

// takeStatus returns the error of a backlogged status reply, if any
func (s *StepMotor) takeStatus() error {
	resp, err := s.mcu.WaitResponse("step_motor_status", s.match(), 0)
	if err != nil {
		return nil
	}
	return core.StatusError(uint8(resp.Args["status"]))
}

func (s *StepMotor) match() map[string]uint32 {
	return map[string]uint32{"oid": uint32(s.OID)}
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
