// Package console implements the stepctl motor commands shared by the
// interactive shell and scripted runs.
package console

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"stepdrive/core"
)

// Motor is the step motor surface the console drives
type Motor interface {
	Power(on bool) error
	SetDirection(dir core.Direction) error
	Run(steps uint32) (uint32, error)
	AlarmStop() error
	Recover() error
	State() (core.StepMotorState, uint32, error)
}

// ErrUsage is returned for malformed commands
var ErrUsage = errors.New("usage")

// Command describes one console command
type Command struct {
	Name string
	Help string
}

// Commands lists the console commands in help order
var Commands = []Command{
	{"power", "power on|off"},
	{"dir", "dir fwd|back"},
	{"run", "run <steps>"},
	{"alarm", "alarm - latch alarm stop"},
	{"recover", "recover - leave alarm stop"},
	{"state", "state - show lifecycle state and total steps"},
	{"estop", "estop - alarm stop every motor"},
}

// Console executes commands against one motor
type Console struct {
	Motor Motor

	// EmergencyStop stops every motor on the firmware
	EmergencyStop func() error

	Out io.Writer
}

// Exec runs one command given as words
func (c *Console) Exec(args []string) error {
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case "power":
		on, err := pick(args, "on", "off")
		if err != nil {
			return err
		}
		return c.report(c.Motor.Power(on), "power "+args[1])

	case "dir":
		fwd, err := pick(args, "fwd", "back")
		if err != nil {
			return err
		}
		dir := core.DirectionBackward
		if fwd {
			dir = core.DirectionForward
		}
		return c.report(c.Motor.SetDirection(dir), "direction "+args[1])

	case "run":
		if len(args) != 2 {
			return fmt.Errorf("%w: run <steps>", ErrUsage)
		}
		steps, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: run <steps>: %v", ErrUsage, err)
		}
		count, err := c.Motor.Run(uint32(steps))
		fmt.Fprintf(c.Out, "emitted %d of %d steps\n", count, steps)
		return err

	case "alarm":
		return c.report(c.Motor.AlarmStop(), "alarm stop latched")

	case "recover":
		return c.report(c.Motor.Recover(), "recovered")

	case "state":
		state, total, err := c.Motor.State()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "state %s, total steps %d\n", state, total)
		return nil

	case "estop":
		if c.EmergencyStop == nil {
			return errors.New("emergency stop not available")
		}
		return c.report(c.EmergencyStop(), "emergency stop sent")
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// ExecLine splits a line shell-style and runs it
func (c *Console) ExecLine(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return c.Exec(args)
}

// ExecScript runs ';'-separated commands, stopping at the first error
func (c *Console) ExecScript(script string) error {
	for _, line := range strings.Split(script, ";") {
		if err := c.ExecLine(line); err != nil {
			return fmt.Errorf("%s: %w", strings.TrimSpace(line), err)
		}
	}
	return nil
}

func (c *Console) report(err error, done string) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, done)
	return nil
}

// pick parses a two-choice argument, returning true for yes
func pick(args []string, yes, no string) (bool, error) {
	if len(args) == 2 {
		switch args[1] {
		case yes:
			return true, nil
		case no:
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s %s|%s", ErrUsage, args[0], yes, no)
}
