package core

import "stepdrive/protocol"

// Step motor command handlers.
// Driver errors are reported to the host as a status code; only argument
// decode failures are returned to the transport.

// RegisterStepMotorCommands registers all step motor commands and responses
func RegisterStepMotorCommands() {
	RegisterCommand("config_step_motor",
		"oid=%c power_pin=%u dir_pin=%u step_pin=%u rising_us=%u falling_us=%u"+
			" dir_forward_level=%c power_off_level=%c lock_timeout_ms=%i",
		cmdConfigStepMotor)

	RegisterCommand("step_motor_power", "oid=%c on=%c", cmdStepMotorPower)
	RegisterCommand("step_motor_dir", "oid=%c dir=%c", cmdStepMotorDir)
	RegisterCommand("step_motor_alarm_stop", "oid=%c", cmdStepMotorAlarmStop)
	RegisterCommand("step_motor_recover", "oid=%c", cmdStepMotorRecover)
	RegisterCommand("step_motor_run", "oid=%c steps=%u", cmdStepMotorRun)
	RegisterCommand("step_motor_get_state", "oid=%c", cmdStepMotorGetState)

	RegisterResponse("step_motor_status", "oid=%c status=%c")
	RegisterResponse("step_motor_state", "oid=%c status=%c state=%c total_steps=%u")
	RegisterResponse("step_motor_run_result", "oid=%c status=%c count=%u")
}

// decodeArgs decodes n VLQ unsigned arguments
func decodeArgs(data *[]byte, args ...*uint32) error {
	for _, arg := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*arg = v
	}
	return nil
}

func sendStatus(oid uint32, err error) {
	SendResponse("step_motor_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, oid)
		protocol.EncodeVLQUint(output, uint32(StatusCode(err)))
	})
}

// lookupMotor reports ErrUnknownMotor to the host when oid is not configured
func lookupMotor(oid uint32) *StepMotor {
	var m *StepMotor
	if oid < MaxStepMotors {
		m = GetStepMotor(uint8(oid))
	}
	if m == nil {
		sendStatus(oid, ErrUnknownMotor)
	}
	return m
}

// cmdConfigStepMotor creates a step motor
// Format: config_step_motor oid=%c power_pin=%u dir_pin=%u step_pin=%u rising_us=%u
// falling_us=%u dir_forward_level=%c power_off_level=%c lock_timeout_ms=%i
func cmdConfigStepMotor(data *[]byte) error {
	var oid, powerPin, dirPin, stepPin, rising, falling, fwdLevel, offLevel uint32
	if err := decodeArgs(data, &oid, &powerPin, &dirPin, &stepPin, &rising, &falling,
		&fwdLevel, &offLevel); err != nil {
		return err
	}
	timeoutMs, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}

	cfg := StepMotorConfig{
		PowerPin:        GPIOPin(powerPin),
		DirPin:          GPIOPin(dirPin),
		StepPin:         GPIOPin(stepPin),
		RisingDelay:     rising,
		FallingDelay:    falling,
		DirForwardLevel: fwdLevel != 0,
		PowerOffLevel:   offLevel != 0,
		LockTimeout:     LockTimeoutFromWire(timeoutMs),
	}

	if oid >= MaxStepMotors {
		err = ErrOIDRange
	} else {
		_, err = ConfigureStepMotor(uint8(oid), cfg)
	}
	sendStatus(oid, err)
	return nil
}

// cmdStepMotorPower turns winding power on or off
// Format: step_motor_power oid=%c on=%c
func cmdStepMotorPower(data *[]byte) error {
	var oid, on uint32
	if err := decodeArgs(data, &oid, &on); err != nil {
		return err
	}
	m := lookupMotor(oid)
	if m == nil {
		return nil
	}

	mode := PowerOff
	if on != 0 {
		mode = PowerOn
	}
	sendStatus(oid, m.TurnPower(mode))
	return nil
}

// cmdStepMotorDir sets the direction line
// Format: step_motor_dir oid=%c dir=%c (0 forward, 1 backward)
func cmdStepMotorDir(data *[]byte) error {
	var oid, dir uint32
	if err := decodeArgs(data, &oid, &dir); err != nil {
		return err
	}
	m := lookupMotor(oid)
	if m == nil {
		return nil
	}

	d := DirectionForward
	if dir != 0 {
		d = DirectionBackward
	}
	sendStatus(oid, m.SetDirection(d))
	return nil
}

// cmdStepMotorAlarmStop latches alarm stop
// Format: step_motor_alarm_stop oid=%c
func cmdStepMotorAlarmStop(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	m := lookupMotor(oid)
	if m == nil {
		return nil
	}

	m.AlarmStop()
	sendStatus(oid, nil)
	return nil
}

// cmdStepMotorRecover clears a latched alarm stop
// Format: step_motor_recover oid=%c
func cmdStepMotorRecover(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	m := lookupMotor(oid)
	if m == nil {
		return nil
	}

	sendStatus(oid, m.RecoverFromAlarm())
	return nil
}

// cmdStepMotorRun starts a run. The status reply acknowledges the request;
// step_motor_run_result follows when the run ends.
// Format: step_motor_run oid=%c steps=%u
func cmdStepMotorRun(data *[]byte) error {
	var oid, steps uint32
	if err := decodeArgs(data, &oid, &steps); err != nil {
		return err
	}
	m := lookupMotor(oid)
	if m == nil {
		return nil
	}

	if runWorker == nil {
		sendStatus(oid, nil)
		sendRunResult(execRun(m, steps))
		return nil
	}

	if !runWorker.Submit(m, steps) {
		sendStatus(oid, ErrBusy)
		return nil
	}
	sendStatus(oid, nil)
	return nil
}

// cmdStepMotorGetState reports the lifecycle state
// Format: step_motor_get_state oid=%c
func cmdStepMotorGetState(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	m := lookupMotor(oid)
	if m == nil {
		return nil
	}

	state, err := m.State()
	SendResponse("step_motor_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, oid)
		protocol.EncodeVLQUint(output, uint32(StatusCode(err)))
		protocol.EncodeVLQUint(output, uint32(state))
		protocol.EncodeVLQUint(output, m.TotalSteps())
	})
	return nil
}
