package core

import (
	"stepdrive/protocol"

	"tinygo.org/x/drivers"
)

// SerialLink connects the command transport to a UART or USB CDC port.
// Poll must be called from a single goroutine, the main loop.
type SerialLink struct {
	uart drivers.UART

	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput
	transport *protocol.Transport

	readBuf [64]byte

	RxErrors uint32
}

// NewSerialLink creates the transport for uart and installs it as the
// global response transport
func NewSerialLink(uart drivers.UART) *SerialLink {
	l := &SerialLink{
		uart:   uart,
		input:  protocol.NewFifoBuffer(256),
		output: protocol.NewScratchOutput(),
	}
	l.transport = protocol.NewTransport(l.output, handleCommand)
	l.transport.SetResetCallback(func() {
		// Drop output still addressed to the previous session
		l.output.Reset()
	})
	l.transport.SetFlushCallback(l.flush)

	SetGlobalTransport(l.transport)
	return l
}

// Transport returns the link's transport
func (l *SerialLink) Transport() *protocol.Transport {
	return l.transport
}

// Poll reads pending bytes, processes complete frames, reports finished
// runs and writes queued output
func (l *SerialLink) Poll() {
	for l.uart.Buffered() > 0 && l.input.Free() > 0 {
		want := len(l.readBuf)
		if free := l.input.Free(); free < want {
			want = free
		}
		n, err := l.uart.Read(l.readBuf[:want])
		if err != nil {
			l.RxErrors++
			break
		}
		if n == 0 {
			break
		}
		l.input.Write(l.readBuf[:n])
	}

	if l.input.Available() > 0 {
		data := l.input.Data()
		originalLen := len(data)
		inputBuf := protocol.NewSliceInputBuffer(data)

		l.transport.Receive(inputBuf)

		// Remove consumed bytes from FIFO
		if consumed := originalLen - inputBuf.Available(); consumed > 0 {
			l.input.Pop(consumed)
		}
	}

	FlushRunResults()
	l.flush()
}

func (l *SerialLink) flush() {
	result := l.output.Result()
	if len(result) == 0 {
		return
	}
	if _, err := l.uart.Write(result); err != nil {
		DebugAsync("[LINK] write failed: " + err.Error())
	}
	l.output.Reset()
}

// handleCommand dispatches received commands to the command registry
func handleCommand(cmdID uint16, data *[]byte) error {
	return DispatchCommand(cmdID, data)
}
