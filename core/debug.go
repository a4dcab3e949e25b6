package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// MotorEvent captures a step motor state transition for post-mortem analysis
type MotorEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Step motor object ID
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtPower     = 1 // Power mode applied (v1=state)
	EvtRunStart  = 2 // Run accepted (v1=requested steps)
	EvtRunDone   = 3 // Run completed (v1=steps emitted)
	EvtRunAbort  = 4 // Run aborted by alarm (v1=steps emitted)
	EvtAlarmStop = 5 // Alarm stop latched (v1=state before)
	EvtRecover   = 6 // Recovered from alarm stop
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event ring buffer, written with interrupts disabled
	eventRing     [EventRingSize]MotorEvent
	eventRingHead uint8

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
// Step timing is affected when enabled
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync for non-blocking)
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugEnabled && debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// recordEvent stores an event in the ring buffer.
// Must be called with interrupts disabled.
func recordEvent(eventType, oid uint8, value1, value2 uint32) {
	idx := eventRingHead
	eventRing[idx] = MotorEvent{
		EventType: eventType,
		OID:       oid,
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// SnapshotEvents returns the recorded events, oldest first
func SnapshotEvents() []MotorEvent {
	irq := disableInterrupts()
	ring := eventRing
	start := eventRingHead
	restoreInterrupts(irq)

	events := make([]MotorEvent, 0, EventRingSize)
	for i := uint8(0); i < EventRingSize; i++ {
		evt := ring[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// DumpEventRing outputs the event ring buffer (call on shutdown/error)
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range SnapshotEvents() {
		var name string
		switch evt.EventType {
		case EvtPower:
			name = "POWER"
		case EvtRunStart:
			name = "RUN_START"
		case EvtRunDone:
			name = "RUN_DONE"
		case EvtRunAbort:
			name = "RUN_ABORT!"
		case EvtAlarmStop:
			name = "ALARM_STOP!"
		case EvtRecover:
			name = "RECOVER"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[EVENTS] " + name +
			" oid=" + itoa(int(evt.OID)) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	irq := disableInterrupts()
	for i := range eventRing {
		eventRing[i] = MotorEvent{}
	}
	eventRingHead = 0
	restoreInterrupts(irq)
}
