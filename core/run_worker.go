package core

import (
	"stepdrive/protocol"
)

// Runs block for their full duration, so step_motor_run hands them to a
// worker goroutine and the command loop stays free to process alarm stop
// and state queries. Results are reported back through the main loop,
// which owns the transport.

// RunResult is the outcome of a queued run
type RunResult struct {
	OID    uint8
	Status uint8
	Count  uint32
}

type runRequest struct {
	motor *StepMotor
	steps uint32
}

// RunWorker executes queued runs one at a time
type RunWorker struct {
	requests chan runRequest
	results  chan RunResult
}

var runWorker *RunWorker

// NewRunWorker creates a worker accepting up to queueLen pending runs
func NewRunWorker(queueLen int) *RunWorker {
	if queueLen < 1 {
		queueLen = 1
	}
	return &RunWorker{
		requests: make(chan runRequest, queueLen),
		results:  make(chan RunResult, queueLen+1),
	}
}

// SetRunWorker installs the worker used by step_motor_run.
// With no worker installed runs execute inline in the command handler.
func SetRunWorker(w *RunWorker) {
	runWorker = w
}

// Start launches the worker goroutine
func (w *RunWorker) Start() {
	go w.loop()
}

// Submit queues a run without blocking. Returns false if the queue is full.
func (w *RunWorker) Submit(m *StepMotor, steps uint32) bool {
	select {
	case w.requests <- runRequest{motor: m, steps: steps}:
		return true
	default:
		return false
	}
}

// Poll hands every completed run result to fn without blocking
func (w *RunWorker) Poll(fn func(RunResult)) {
	for {
		select {
		case r := <-w.results:
			fn(r)
		default:
			return
		}
	}
}

func (w *RunWorker) loop() {
	for req := range w.requests {
		w.results <- execRun(req.motor, req.steps)
	}
}

func execRun(m *StepMotor, steps uint32) RunResult {
	var count uint32
	err := m.Run(steps, &count)
	if err != nil {
		DebugAsync("[STEP] run on motor " + itoa(int(m.OID)) + " ended: " + err.Error())
	}
	return RunResult{OID: m.OID, Status: StatusCode(err), Count: count}
}

// FlushRunResults sends step_motor_run_result for every completed run.
// Called from the main loop.
func FlushRunResults() {
	if runWorker == nil {
		return
	}
	runWorker.Poll(sendRunResult)
}

func sendRunResult(r RunResult) {
	SendResponse("step_motor_run_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(r.OID))
		protocol.EncodeVLQUint(output, uint32(r.Status))
		protocol.EncodeVLQUint(output, r.Count)
	})
}
