package core

import (
	"stepdrive/protocol"
)

// IdentifyChunkMax caps the dictionary bytes returned per identify request
// so a response fits one frame
const IdentifyChunkMax = 48

// Global transport for sending responses (set by the serial link)
var globalTransport *protocol.Transport

// SetGlobalTransport sets the transport responses are sent on
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// InitCoreCommands registers the bootstrap commands.
// IMPORTANT: must run before any other registration so identify_response
// and identify get IDs 0 and 1.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterCommand("emergency_stop", "", handleEmergencyStop)
}

// handleIdentify returns a chunk of the command dictionary
// Format: identify offset=%u count=%c
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > IdentifyChunkMax {
		count = IdentifyChunkMax
	}

	dict := globalRegistry.GetDictionary()
	var chunk []byte
	if offset < uint32(len(dict)) {
		end := offset + count
		if end > uint32(len(dict)) {
			end = uint32(len(dict))
		}
		chunk = []byte(dict[offset:end])
	}

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

// handleEmergencyStop latches alarm stop on every step motor
func handleEmergencyStop(data *[]byte) error {
	AlarmStopAll()
	DebugPrintln("[CORE] emergency stop")
	return nil
}

// SendResponse encodes a registered response on the global transport
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// All responses are registered at init
		panic("Response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}
