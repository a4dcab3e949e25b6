package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"stepdrive/host/console"
	"stepdrive/host/mcu"
	"stepdrive/host/profile"
	"stepdrive/host/serial"
)

var (
	device      = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud        = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	profilePath = flag.String("profile", "", "YAML motor profile; configures the motor on connect")
	oid         = flag.Uint("oid", 0, "Motor OID when no profile is given")
	runTimeout  = flag.Duration("run-timeout", time.Minute, "Maximum wait for a run to finish")
	exec        = flag.String("exec", "", "Run ';'-separated commands and exit instead of starting the shell")
	showDict    = flag.Bool("dict", false, "Print the firmware dictionary after connecting")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	motorOID := uint8(*oid)
	var prof *profile.Profile
	if *profilePath != "" {
		var err error
		if prof, err = profile.Load(*profilePath); err != nil {
			return err
		}
		motorOID = prof.OID
	}

	mcuConn := mcu.NewMCU()
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("Connecting to %s...\n", *device)
	if err := mcuConn.ConnectWithConfig(cfg); err != nil {
		return err
	}
	defer mcuConn.Close()

	if err := mcuConn.RetrieveDictionary(); err != nil {
		return err
	}
	if *showDict {
		mcuConn.PrintDictionary(os.Stdout)
	}

	if prof != nil {
		if err := mcuConn.ConfigureStepMotor(prof.OID, prof.StepMotorConfig()); err != nil {
			return fmt.Errorf("configuring %s: %w", prof.Name, err)
		}
		fmt.Printf("Configured %s as motor %d\n", prof.Name, prof.OID)
	}

	motor := mcuConn.StepMotor(motorOID)
	motor.RunTimeout = *runTimeout

	con := &console.Console{
		Motor:         motor,
		EmergencyStop: mcuConn.EmergencyStop,
		Out:           os.Stdout,
	}

	if *exec != "" {
		return con.ExecScript(*exec)
	}

	shell := ishell.New()
	shell.Println("stepctl: motor", motorOID, "on", *device)
	for _, cmd := range console.Commands {
		name := cmd.Name
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: cmd.Help,
			Func: func(c *ishell.Context) {
				args := append([]string{name}, c.Args...)
				if err := con.Exec(args); err != nil {
					c.Println("Error: " + err.Error())
				}
			},
		})
	}
	shell.AddCmd(&ishell.Cmd{
		Name: "dict",
		Help: "dict - list firmware messages",
		Func: func(c *ishell.Context) {
			var b strings.Builder
			mcuConn.PrintDictionary(&b)
			c.Printf("%s", b.String())
		},
	})
	shell.Start()
	return nil
}
