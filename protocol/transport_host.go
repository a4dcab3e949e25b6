package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultAckTimeout bounds how long SendCommand waits for the ACK
const DefaultAckTimeout = 2 * time.Second

// ErrTransportClosed is returned once the transport has been closed
var ErrTransportClosed = errors.New("transport closed")

// Message is a decoded frame received from the firmware
type Message struct {
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
}

// CommandID decodes the leading command ID and returns it with the
// remaining argument bytes
func (m *Message) CommandID() (uint16, []byte, error) {
	data := m.Payload
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), data, nil
}

// HostTransport is the host side of the link: it frames commands, waits
// for their ACKs and queues response frames.
type HostTransport struct {
	port io.ReadWriteCloser

	// Serializes request/ACK exchanges
	sendMu sync.Mutex
	seq    uint8

	scanner frameScanner
	input   *FifoBuffer

	ackChan      chan uint8
	responseChan chan *Message

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewHostTransport creates a host transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		seq:          SeqDest,
		input:        NewFifoBuffer(1024),
		ackChan:      make(chan uint8, 4),
		responseChan: make(chan *Message, 32),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends a command and waits for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout sends a command with a custom ACK timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	out := NewScratchOutput()
	encodeFrame(out, t.seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
	msg := out.Result()
	if len(msg) > FrameMax {
		return fmt.Errorf("message too long: %d bytes (max %d)", len(msg), FrameMax)
	}

	// Drop stale ACKs from earlier exchanges
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}

	if _, err := t.port.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	want := nextSeq(t.seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-t.ackChan:
			if ack != want {
				// NAK: firmware expects another sequence
				continue
			}
			t.seq = want
			return nil
		case <-timer.C:
			return fmt.Errorf("ACK timeout after %v", timeout)
		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse returns the next response frame
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// readLoop feeds serial data through the frame scanner until closed
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processInput()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processInput() {
	data := t.input.Data()
	consumed := 0
	for {
		frame, n, _ := t.scanner.next(data[consumed:])
		consumed += n
		if frame == nil {
			break
		}
		t.dispatch(frame)
	}
	t.input.Pop(consumed)
}

// dispatch routes ACK/NAK frames and response frames to their channels
func (t *HostTransport) dispatch(frame []byte) {
	payload := framePayload(frame)
	seq := frame[FramePosSeq]

	if len(payload) == 0 {
		select {
		case t.ackChan <- seq:
		default:
		}
		return
	}

	msg := &Message{Sequence: seq, Payload: append([]byte(nil), payload...)}
	select {
	case t.responseChan <- msg:
	default:
		// Full: drop the oldest response
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}
