// Package profile loads step motor profiles: the wiring, pulse timing and
// polarity of one motor, kept in YAML next to the machine it describes.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"stepdrive/core"
)

// Level is a logic level written as "high" or "low"
type Level string

const (
	LevelHigh Level = "high"
	LevelLow  Level = "low"
)

// Profile describes one step motor
type Profile struct {
	Name string `yaml:"name"`
	OID  uint8  `yaml:"oid"`

	Pins     Pins     `yaml:"pins"`
	Timing   Timing   `yaml:"timing"`
	Polarity Polarity `yaml:"polarity"`

	// LockTimeoutMs bounds the firmware access lock wait, 0 for the
	// firmware default, negative to never wait
	LockTimeoutMs int32 `yaml:"lock_timeout_ms"`
}

// Pins are GPIO numbers. Zero is a valid pin, so unset pins are nil.
type Pins struct {
	Power *uint32 `yaml:"power"`
	Dir   *uint32 `yaml:"dir"`
	Step  *uint32 `yaml:"step"`
}

// Timing is the step pulse shape in µs
type Timing struct {
	RisingUs  uint32 `yaml:"rising_us"`
	FallingUs uint32 `yaml:"falling_us"`
}

// Polarity selects line levels
type Polarity struct {
	DirForward Level `yaml:"dir_forward"`
	PowerOff   Level `yaml:"power_off"`
}

// Load reads and validates a profile file
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML profile
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	applyDefaults(&p)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// applyDefaults fills in missing values
func applyDefaults(p *Profile) {
	if p.Name == "" {
		p.Name = "motor" + fmt.Sprint(p.OID)
	}

	// 1 kHz step rate
	if p.Timing.RisingUs == 0 {
		p.Timing.RisingUs = 500
	}
	if p.Timing.FallingUs == 0 {
		p.Timing.FallingUs = 500
	}

	if p.Polarity.DirForward == "" {
		p.Polarity.DirForward = LevelHigh
	}
	// Common driver modules disable the outputs with EN high
	if p.Polarity.PowerOff == "" {
		p.Polarity.PowerOff = LevelHigh
	}
}

// Validate checks the profile for missing or conflicting values
func (p *Profile) Validate() error {
	if p.OID >= core.MaxStepMotors {
		return fmt.Errorf("oid %d exceeds maximum %d", p.OID, core.MaxStepMotors-1)
	}

	pins := map[string]*uint32{"power": p.Pins.Power, "dir": p.Pins.Dir, "step": p.Pins.Step}
	used := make(map[uint32]string)
	for _, name := range []string{"power", "dir", "step"} {
		pin := pins[name]
		if pin == nil {
			return fmt.Errorf("pins.%s is required", name)
		}
		if other, dup := used[*pin]; dup {
			return fmt.Errorf("pins.%s and pins.%s both use pin %d", other, name, *pin)
		}
		used[*pin] = name
	}

	for name, level := range map[string]Level{
		"polarity.dir_forward": p.Polarity.DirForward,
		"polarity.power_off":   p.Polarity.PowerOff,
	} {
		if level != LevelHigh && level != LevelLow {
			return fmt.Errorf("%s must be %q or %q, got %q", name, LevelHigh, LevelLow, level)
		}
	}
	return nil
}

// StepMotorConfig converts the profile to the driver configuration
func (p *Profile) StepMotorConfig() core.StepMotorConfig {
	return core.StepMotorConfig{
		PowerPin:        core.GPIOPin(*p.Pins.Power),
		DirPin:          core.GPIOPin(*p.Pins.Dir),
		StepPin:         core.GPIOPin(*p.Pins.Step),
		RisingDelay:     p.Timing.RisingUs,
		FallingDelay:    p.Timing.FallingUs,
		DirForwardLevel: p.Polarity.DirForward == LevelHigh,
		PowerOffLevel:   p.Polarity.PowerOff == LevelHigh,
		LockTimeout:     core.LockTimeoutFromWire(p.LockTimeoutMs),
	}
}
