package mcu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"stepdrive/host/serial"
	"stepdrive/protocol"
)

// DefaultResponseTimeout bounds how long a command waits for its reply
const DefaultResponseTimeout = time.Second

// identifyChunkSize is the dictionary bytes requested per identify
const identifyChunkSize = 40

// ErrNotConnected is returned when no firmware link is open
var ErrNotConnected = errors.New("not connected to MCU")

// Response is a decoded response message
type Response struct {
	Name  string
	Args  map[string]uint32
	Bytes map[string][]byte
}

// MCU is a connection to the step motor firmware
type MCU struct {
	transport *protocol.HostTransport

	dictionary     *Dictionary
	dictionaryData []byte

	// Responses received while waiting for a different one, oldest first
	backlog []*Response

	connected bool
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{}
}

// Connect connects to the firmware via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return fmt.Errorf("failed to flush serial port: %w", err)
	}

	m.ConnectPort(port)

	// Give the firmware time to initialize (if it just powered on)
	time.Sleep(100 * time.Millisecond)
	return nil
}

// ConnectPort uses an already open link
func (m *MCU) ConnectPort(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.connected = true
}

// Close closes the connection
func (m *MCU) Close() error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			return err
		}
	}
	m.connected = false
	return nil
}

// IsConnected returns whether the firmware link is open
func (m *MCU) IsConnected() bool {
	return m.connected
}

// RetrieveDictionary reads the dictionary in identify-sized chunks
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	var dictBuffer bytes.Buffer
	for {
		chunk, err := m.sendIdentify(uint32(dictBuffer.Len()), identifyChunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", dictBuffer.Len(), err)
		}
		if len(chunk) == 0 {
			break
		}
		dictBuffer.Write(chunk)
	}

	dict, err := ParseDictionary(dictBuffer.Bytes())
	if err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}

	m.dictionaryData = dictBuffer.Bytes()
	m.dictionary = dict
	return nil
}

// sendIdentify requests one dictionary chunk
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommand(protocol.IdentifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	for {
		resp, err := m.transport.ReceiveResponse(DefaultResponseTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to receive identify response: %w", err)
		}

		cmdID, payload, err := resp.CommandID()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response command ID: %w", err)
		}
		if cmdID != protocol.IdentifyResponseID {
			// Leftover from a previous session
			continue
		}

		respOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response offset: %w", err)
		}
		if respOffset != offset {
			return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
		}

		data, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
		return data, nil
	}
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// PrintDictionary prints the declared messages
func (m *MCU) PrintDictionary(w io.Writer) {
	if m.dictionary == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}

	fmt.Fprintf(w, "Messages (%d):\n", m.dictionary.Len())
	for id, name := range m.dictionary.Names() {
		fmt.Fprintf(w, "  [%d] %s\n", id, name)
	}
}

// SendCommand sends a command by name; args are its integer parameters in
// declaration order
func (m *MCU) SendCommand(name string, args ...uint32) error {
	if !m.connected {
		return ErrNotConnected
	}
	if m.dictionary == nil {
		return errors.New("dictionary not loaded")
	}

	msg, ok := m.dictionary.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	if len(args) != len(msg.Params) {
		return fmt.Errorf("%s takes %d arguments, got %d", name, len(msg.Params), len(args))
	}

	return m.transport.SendCommand(msg.ID, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	})
}

// WaitResponse returns the next response named name whose arguments match
// every entry of match. Other responses are kept for later calls.
func (m *MCU) WaitResponse(name string, match map[string]uint32, timeout time.Duration) (*Response, error) {
	for i, resp := range m.backlog {
		if resp.matches(name, match) {
			m.backlog = append(m.backlog[:i], m.backlog[i+1:]...)
			return resp, nil
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timeout waiting for %s", name)
		}

		msg, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", name, err)
		}
		resp, err := m.decode(msg)
		if err != nil {
			return nil, err
		}
		if resp.matches(name, match) {
			return resp, nil
		}
		m.keep(resp)
	}
}

// maxBacklog bounds the responses kept for later WaitResponse calls
const maxBacklog = 32

// keep adds resp to the backlog, dropping the oldest entry when full
func (m *MCU) keep(resp *Response) {
	if len(m.backlog) >= maxBacklog {
		copy(m.backlog, m.backlog[1:])
		m.backlog = m.backlog[:len(m.backlog)-1]
	}
	m.backlog = append(m.backlog, resp)
}

// decode decodes a response using its dictionary format
func (m *MCU) decode(msg *protocol.Message) (*Response, error) {
	id, payload, err := msg.CommandID()
	if err != nil {
		return nil, fmt.Errorf("failed to decode response command ID: %w", err)
	}
	format, ok := m.dictionary.LookupID(id)
	if !ok {
		return nil, fmt.Errorf("unknown response ID %d", id)
	}

	resp := &Response{
		Name: format.Name,
		Args: make(map[string]uint32, len(format.Params)),
	}
	for _, p := range format.Params {
		if p.Bytes {
			b, err := protocol.DecodeVLQBytes(&payload)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", format.Name, p.Name, err)
			}
			if resp.Bytes == nil {
				resp.Bytes = make(map[string][]byte)
			}
			resp.Bytes[p.Name] = b
			continue
		}
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", format.Name, p.Name, err)
		}
		resp.Args[p.Name] = v
	}
	return resp, nil
}

func (r *Response) matches(name string, match map[string]uint32) bool {
	if r.Name != name {
		return false
	}
	for k, v := range match {
		if r.Args[k] != v {
			return false
		}
	}
	return true
}
