package core

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"stepdrive/protocol"
)

func init() {
	// Bootstrap IDs depend on registration order, so register before any
	// test touches the global registry
	InitCoreCommands()
	RegisterStepMotorCommands()
}

// loopbackUART connects a SerialLink to a host transport in memory
type loopbackUART struct {
	mu     sync.Mutex
	rx     []byte // host -> firmware
	toHost chan []byte
}

func newLoopbackUART() *loopbackUART {
	return &loopbackUART{toHost: make(chan []byte, 64)}
}

func (u *loopbackUART) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := copy(p, u.rx)
	u.rx = u.rx[n:]
	return n, nil
}

func (u *loopbackUART) Write(p []byte) (int, error) {
	u.toHost <- append([]byte(nil), p...)
	return len(p), nil
}

func (u *loopbackUART) Buffered() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rx)
}

// hostPort is the host end of a loopbackUART
type hostPort struct {
	uart    *loopbackUART
	pending []byte
	closed  chan struct{}
}

func (p *hostPort) Write(b []byte) (int, error) {
	p.uart.mu.Lock()
	p.uart.rx = append(p.uart.rx, b...)
	p.uart.mu.Unlock()
	return len(b), nil
}

func (p *hostPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case data := <-p.uart.toHost:
			p.pending = data
		case <-p.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *hostPort) Close() error {
	close(p.closed)
	return nil
}

type linkFixture struct {
	t    *testing.T
	host *protocol.HostTransport
	gpio *fakeGPIO
	stop chan struct{}
	done chan struct{}
}

// resetStepMotors clears the global motor registry
func resetStepMotors() {
	for i := range stepMotors {
		stepMotors[i] = nil
	}
	stepMotorCount = 0
}

func newLinkFixture(t *testing.T, worker *RunWorker) *linkFixture {
	t.Helper()
	resetStepMotors()

	gpio := newFakeGPIO()
	SetGPIODriver(gpio)
	SetDelayer(DelayFunc(func(us uint32) {}))
	SetRunWorker(worker)
	if worker != nil {
		worker.Start()
	}

	uart := newLoopbackUART()
	link := NewSerialLink(uart)

	f := &linkFixture{
		t:    t,
		gpio: gpio,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(f.done)
		for {
			select {
			case <-f.stop:
				return
			default:
			}
			link.Poll()
			time.Sleep(50 * time.Microsecond)
		}
	}()

	f.host = protocol.NewHostTransport(&hostPort{uart: uart, closed: make(chan struct{})})
	t.Cleanup(func() {
		f.host.Close()
		close(f.stop)
		<-f.done
		SetRunWorker(nil)
		SetGlobalTransport(nil)
	})
	return f
}

func (f *linkFixture) send(name string, args ...uint32) {
	f.t.Helper()
	cmd, ok := GetGlobalRegistry().GetCommandByName(name)
	if !ok {
		f.t.Fatalf("Unknown command %s", name)
	}
	err := f.host.SendCommand(cmd.ID, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	})
	if err != nil {
		f.t.Fatalf("SendCommand %s failed: %v", name, err)
	}
}

// expect waits for a response and decodes n arguments
func (f *linkFixture) expect(name string, n int) []uint32 {
	f.t.Helper()
	msg, err := f.host.ReceiveResponse(time.Second)
	if err != nil {
		f.t.Fatalf("Waiting for %s: %v", name, err)
	}
	id, data, err := msg.CommandID()
	if err != nil {
		f.t.Fatalf("Bad response: %v", err)
	}
	cmd, ok := GetGlobalRegistry().GetCommand(id)
	if !ok || cmd.Name != name {
		f.t.Fatalf("Expected %s, got response ID %d", name, id)
	}
	args := make([]uint32, n)
	for i := range args {
		if args[i], err = protocol.DecodeVLQUint(&data); err != nil {
			f.t.Fatalf("Decoding %s: %v", name, err)
		}
	}
	return args
}

func (f *linkFixture) expectStatus(oid uint32, status uint8) {
	f.t.Helper()
	args := f.expect("step_motor_status", 2)
	if args[0] != oid || uint8(args[1]) != status {
		f.t.Errorf("Expected status oid=%d status=%d, got oid=%d status=%d", oid, status, args[0], args[1])
	}
}

func (f *linkFixture) configure(oid uint32) {
	f.t.Helper()
	f.send("config_step_motor", oid, uint32(testPowerPin), uint32(testDirPin), uint32(testStepPin), 5, 5, 1, 0, 0)
	f.expectStatus(oid, StatusOK)
}

func TestBootstrapIDs(t *testing.T) {
	for name, id := range map[string]uint16{
		"identify_response": protocol.IdentifyResponseID,
		"identify":          protocol.IdentifyID,
	} {
		cmd, ok := GetGlobalRegistry().GetCommandByName(name)
		if !ok || cmd.ID != id {
			t.Errorf("Expected %s to have ID %d", name, id)
		}
	}
}

func TestIdentify(t *testing.T) {
	f := newLinkFixture(t, nil)

	var dict []byte
	for {
		f.send("identify", uint32(len(dict)), IdentifyChunkMax)
		msg, err := f.host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("identify: %v", err)
		}
		id, data, _ := msg.CommandID()
		if id != protocol.IdentifyResponseID {
			t.Fatalf("Expected identify_response, got %d", id)
		}
		offset, _ := protocol.DecodeVLQUint(&data)
		if int(offset) != len(dict) {
			t.Fatalf("Expected offset %d, got %d", len(dict), offset)
		}
		chunk, err := protocol.DecodeVLQBytes(&data)
		if err != nil {
			t.Fatalf("Decoding chunk: %v", err)
		}
		if len(chunk) == 0 {
			break
		}
		dict = append(dict, chunk...)
	}

	if string(dict) != GetGlobalRegistry().GetDictionary() {
		t.Errorf("Dictionary mismatch:\n%s", dict)
	}
	if !strings.Contains(string(dict), "step_motor_run oid=%c steps=%u\n") {
		t.Error("Dictionary missing step_motor_run")
	}
}

func TestConfigStepMotorCommand(t *testing.T) {
	f := newLinkFixture(t, nil)

	f.configure(0)

	m := GetStepMotor(0)
	if m == nil {
		t.Fatal("Motor 0 not registered")
	}
	cfg := m.Config()
	if cfg.PowerPin != testPowerPin || cfg.DirPin != testDirPin || cfg.StepPin != testStepPin {
		t.Errorf("Unexpected pins: %+v", cfg)
	}
	if cfg.RisingDelay != 5 || cfg.FallingDelay != 5 || !cfg.DirForwardLevel || cfg.PowerOffLevel {
		t.Errorf("Unexpected timing or polarity: %+v", cfg)
	}

	// Reconfiguring fails
	f.send("config_step_motor", 0, 1, 2, 3, 5, 5, 1, 0, 0)
	f.expectStatus(0, StatusFault)

	// OID out of range
	f.send("config_step_motor", MaxStepMotors, 1, 2, 3, 5, 5, 1, 0, 0)
	f.expectStatus(MaxStepMotors, StatusFault)
}

func TestConfigStepMotorLockTimeout(t *testing.T) {
	f := newLinkFixture(t, nil)

	// lock_timeout_ms is signed: -1 never waits
	noWait := int32(-1)
	f.send("config_step_motor", 0, 1, 2, 3, 5, 5, 1, 0, uint32(noWait))
	f.expectStatus(0, StatusOK)
	f.send("config_step_motor", 1, 4, 5, 6, 5, 5, 1, 0, uint32(LockWireForever))
	f.expectStatus(1, StatusOK)
	f.send("config_step_motor", 2, 7, 8, 9, 5, 5, 1, 0, 25)
	f.expectStatus(2, StatusOK)

	expected := []time.Duration{LockNoWait, LockWaitForever, 25 * time.Millisecond}
	for oid, want := range expected {
		if got := GetStepMotor(uint8(oid)).Config().LockTimeout; got != want {
			t.Errorf("Motor %d lock timeout = %v, expected %v", oid, got, want)
		}
	}
}

func TestUnknownMotor(t *testing.T) {
	f := newLinkFixture(t, nil)

	f.send("step_motor_power", 3, 1)
	f.expectStatus(3, StatusUnknownMotor)
}

func TestStepMotorCommands(t *testing.T) {
	f := newLinkFixture(t, nil)
	f.configure(0)

	expectState := func(state StepMotorState, totalSteps uint32) {
		t.Helper()
		f.send("step_motor_get_state", 0)
		args := f.expect("step_motor_state", 4)
		if uint8(args[1]) != StatusOK || StepMotorState(args[2]) != state || args[3] != totalSteps {
			t.Errorf("Expected state %v with %d steps, got status=%d state=%d steps=%d",
				state, totalSteps, args[1], args[2], args[3])
		}
	}

	expectState(StateOff, 0)

	// Run from off is rejected
	f.send("step_motor_run", 0, 5)
	f.expectStatus(0, StatusOK)
	res := f.expect("step_motor_run_result", 3)
	if uint8(res[1]) != StatusInvalidState || res[2] != 0 {
		t.Errorf("Expected invalid state with no steps, got %v", res)
	}

	f.send("step_motor_power", 0, 1)
	f.expectStatus(0, StatusOK)
	expectState(StateIdle, 0)

	f.send("step_motor_dir", 0, 1)
	f.expectStatus(0, StatusOK)
	if f.gpio.level(testDirPin) {
		t.Error("Backward should drive the direction line low")
	}

	f.send("step_motor_run", 0, 25)
	f.expectStatus(0, StatusOK)
	res = f.expect("step_motor_run_result", 3)
	if res[0] != 0 || uint8(res[1]) != StatusOK || res[2] != 25 {
		t.Errorf("Unexpected run result %v", res)
	}
	expectState(StateIdle, 25)

	f.send("step_motor_alarm_stop", 0)
	f.expectStatus(0, StatusOK)
	expectState(StateAlarmStop, 25)

	f.send("step_motor_power", 0, 0)
	f.expectStatus(0, StatusBlocked)

	f.send("step_motor_recover", 0)
	f.expectStatus(0, StatusOK)
	expectState(StateIdle, 25)

	f.send("emergency_stop")
	expectState(StateAlarmStop, 25)
}

func TestRunWorkerCommand(t *testing.T) {
	f := newLinkFixture(t, NewRunWorker(1))
	f.configure(0)

	f.send("step_motor_power", 0, 1)
	f.expectStatus(0, StatusOK)

	f.send("step_motor_run", 0, 100)
	f.expectStatus(0, StatusOK)

	res := f.expect("step_motor_run_result", 3)
	if uint8(res[1]) != StatusOK || res[2] != 100 {
		t.Errorf("Unexpected run result %v", res)
	}
	if f.gpio.pulses() != 100 {
		t.Errorf("Expected 100 pulses, got %d", f.gpio.pulses())
	}
}

func TestRunWorkerQueueFull(t *testing.T) {
	w := NewRunWorker(1)
	m := NewStepMotor(0, testConfig(), newFakeGPIO(), &simDelay{})

	if !w.Submit(m, 1) {
		t.Fatal("First submit should be queued")
	}
	if w.Submit(m, 1) {
		t.Error("Submit should fail while the queue is full")
	}

	// Worker not started: nothing to report
	polled := 0
	w.Poll(func(RunResult) { polled++ })
	if polled != 0 {
		t.Errorf("Expected no results, got %d", polled)
	}
}

func TestAlarmStopAbortsWorkerRun(t *testing.T) {
	for _, stop := range []string{"step_motor_alarm_stop", "emergency_stop"} {
		t.Run(stop, func(t *testing.T) {
			f := newLinkFixture(t, NewRunWorker(1))
			SetDelayer(DelayFunc(func(us uint32) {
				time.Sleep(20 * time.Microsecond)
			}))
			f.configure(0)

			f.send("step_motor_power", 0, 1)
			f.expectStatus(0, StatusOK)

			const steps = 100000
			f.send("step_motor_run", 0, steps)
			f.expectStatus(0, StatusOK)

			// Let the worker emit some pulses
			deadline := time.Now().Add(5 * time.Second)
			for f.gpio.pulses() < 10 {
				if time.Now().After(deadline) {
					t.Fatal("Run did not start")
				}
				time.Sleep(time.Millisecond)
			}

			if stop == "emergency_stop" {
				f.send(stop)
			} else {
				f.send(stop, 0)
				f.expectStatus(0, StatusOK)
			}

			res := f.expect("step_motor_run_result", 3)
			if uint8(res[1]) != StatusAborted {
				t.Errorf("Expected aborted status, got %d", res[1])
			}
			if res[2] >= steps {
				t.Errorf("Expected a partial run, got %d steps", res[2])
			}
			if uint32(f.gpio.pulses()) != res[2] {
				t.Errorf("Count %d does not match %d pulses", res[2], f.gpio.pulses())
			}
			if f.gpio.level(testPowerPin) {
				t.Error("Power line should be at the off level")
			}
		})
	}
}
