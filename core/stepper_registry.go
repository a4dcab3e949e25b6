package core

// Global step motor registry, indexed by OID
var (
	stepMotors     [MaxStepMotors]*StepMotor
	stepMotorCount uint8
)

// GetStepMotor returns a step motor by OID
func GetStepMotor(oid uint8) *StepMotor {
	if oid >= stepMotorCount {
		return nil
	}
	return stepMotors[oid]
}

// ConfigureStepMotor creates a step motor on the registered GPIO driver and
// delay source. A configured OID cannot be reconfigured.
func ConfigureStepMotor(oid uint8, cfg StepMotorConfig) (*StepMotor, error) {
	if oid >= MaxStepMotors {
		return nil, ErrOIDRange
	}
	if stepMotors[oid] != nil {
		return nil, ErrAlreadyConfigured
	}

	m := NewStepMotor(oid, cfg, MustGPIO(), MustDelay())

	stepMotors[oid] = m
	if oid >= stepMotorCount {
		stepMotorCount = oid + 1
	}
	return m, nil
}

// AlarmStopAll latches alarm stop on every configured motor.
// Safe to call from an interrupt handler.
func AlarmStopAll() {
	for i := uint8(0); i < stepMotorCount; i++ {
		if m := stepMotors[i]; m != nil {
			m.AlarmStop()
		}
	}
}
