package protocol

import "sync/atomic"

// CommandHandler is called for each command decoded from a frame.
// It must consume the command's arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link: it decodes host frames,
// dispatches their commands and answers with ACK/NAK and response frames.
type Transport struct {
	scanner frameScanner

	// Next sequence expected from the host, echoed in ACKs and responses
	nextSequence atomic.Uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func() // Called when a host reset is detected
	flushCallback func() // Called to push an ACK out immediately
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		output:  output,
		handler: handler,
	}
	t.nextSequence.Store(SeqDest)
	return t
}

// Receive decodes every complete frame in input and pops the consumed bytes
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	consumed := 0

	for {
		frame, n, resynced := t.scanner.next(data[consumed:])
		consumed += n
		if resynced {
			t.encodeAckNak()
		}
		if frame == nil {
			break
		}
		t.handleFrame(frame)
	}

	input.Pop(consumed)
}

func (t *Transport) handleFrame(frame []byte) {
	seq := frame[FramePosSeq]
	expected := uint8(t.nextSequence.Load())

	// Sequence back at the start means the host reconnected
	if seq == SeqDest && expected != SeqDest {
		expected = SeqDest
		t.nextSequence.Store(SeqDest)
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	// Out-of-sequence frames are dropped; the ACK below then acts as a NAK
	if seq == expected {
		t.nextSequence.Store(uint32(nextSeq(seq)))
		_ = t.parseFrame(framePayload(frame))
	}

	t.encodeAckNak()
}

// parseFrame dispatches every command in a payload
func (t *Transport) parseFrame(payload []byte) (err error) {
	// A panicking handler must not take the firmware down
	defer func() {
		if r := recover(); r != nil {
			t.scanner.lost = true
			err = ErrInvalidVLQ
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.scanner.lost = true
			return err
		}
		if t.handler == nil {
			continue
		}
		// A failing handler leaves its arguments unconsumed, so the rest of
		// the frame cannot be decoded
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			return err
		}
	}
	return nil
}

// encodeAckNak sends an empty frame carrying the next expected sequence
func (t *Transport) encodeAckNak() {
	encodeFrame(t.output, uint8(t.nextSequence.Load()), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand encodes a response frame with the given ID and arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	encodeFrame(t.output, uint8(t.nextSequence.Load()), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.scanner.reset()
	t.nextSequence.Store(SeqDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback used to push ACKs out immediately
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
