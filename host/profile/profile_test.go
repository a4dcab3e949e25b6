package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"stepdrive/core"
)

const testYaml = `
name: x_axis
oid: 1
pins:
  power: 2
  dir: 3
  step: 4
timing:
  rising_us: 20
  falling_us: 30
polarity:
  dir_forward: low
  power_off: low
lock_timeout_ms: 25
`

func TestProfileParsing(t *testing.T) {
	Convey("parsing a complete profile", t, func() {
		p, err := Parse([]byte(testYaml))
		So(err, ShouldBeNil)

		Convey("fields are set", func() {
			So(p.Name, ShouldEqual, "x_axis")
			So(p.OID, ShouldEqual, uint8(1))
			So(*p.Pins.Step, ShouldEqual, uint32(4))
			So(p.Polarity.DirForward, ShouldEqual, LevelLow)
		})

		Convey("the driver config carries polarity and timing", func() {
			cfg := p.StepMotorConfig()
			So(cfg, ShouldResemble, core.StepMotorConfig{
				PowerPin:        2,
				DirPin:          3,
				StepPin:         4,
				RisingDelay:     20,
				FallingDelay:    30,
				DirForwardLevel: false,
				PowerOffLevel:   false,
				LockTimeout:     25 * time.Millisecond,
			})
		})
	})

	Convey("defaults are applied", t, func() {
		p, err := Parse([]byte("pins: {power: 0, dir: 1, step: 2}\n"))
		So(err, ShouldBeNil)
		So(p.Name, ShouldEqual, "motor0")
		So(p.Timing.RisingUs, ShouldEqual, uint32(500))
		So(p.Timing.FallingUs, ShouldEqual, uint32(500))
		So(p.Polarity.DirForward, ShouldEqual, LevelHigh)
		So(p.Polarity.PowerOff, ShouldEqual, LevelHigh)

		cfg := p.StepMotorConfig()
		So(cfg.PowerPin, ShouldEqual, core.GPIOPin(0))
		So(cfg.LockTimeout, ShouldEqual, time.Duration(0))
	})

	Convey("a negative lock timeout never waits", t, func() {
		p, err := Parse([]byte("pins: {power: 0, dir: 1, step: 2}\nlock_timeout_ms: -1\n"))
		So(err, ShouldBeNil)
		So(p.StepMotorConfig().LockTimeout, ShouldEqual, core.LockNoWait)
	})
}

func TestProfileValidation(t *testing.T) {
	Convey("invalid profiles are rejected", t, func() {
		cases := []struct {
			name string
			data string
		}{
			{"missing step pin", "pins: {power: 0, dir: 1}\n"},
			{"shared pin", "pins: {power: 1, dir: 1, step: 2}\n"},
			{"oid out of range", "oid: 8\npins: {power: 0, dir: 1, step: 2}\n"},
			{"bad level", "pins: {power: 0, dir: 1, step: 2}\npolarity: {power_off: maybe}\n"},
			{"unknown field", "pins: {power: 0, dir: 1, step: 2}\nspeed: 3\n"},
		}
		for _, tc := range cases {
			Convey(tc.name, func() {
				_, err := Parse([]byte(tc.data))
				So(err, ShouldNotBeNil)
			})
		}
	})
}

func TestLoad(t *testing.T) {
	Convey("loading from disk", t, func() {
		path := filepath.Join(t.TempDir(), "motor.yaml")
		So(os.WriteFile(path, []byte(testYaml), 0o644), ShouldBeNil)

		p, err := Load(path)
		So(err, ShouldBeNil)
		So(p.Name, ShouldEqual, "x_axis")

		_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
}
