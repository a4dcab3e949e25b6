// Package protocol implements the framed serial link between the step motor
// firmware and host tools.
//
// Frame layout:
//
//	[len][seq][payload ...][crc_hi][crc_lo][0x7E]
//
// len counts the whole frame. seq carries 0x10 in its high bits and a
// 4-bit sequence number. The payload is a run of VLQ-encoded command IDs,
// each followed by its arguments. A frame with an empty payload is an
// ACK/NAK carrying the next expected sequence.
package protocol

// Version is the protocol implementation version
const Version = "0.1.0"

const (
	FrameHeaderSize  = 2
	FrameTrailerSize = 3
	FrameMin         = FrameHeaderSize + FrameTrailerSize
	FrameMax         = 64

	FramePosLen = 0
	FramePosSeq = 1

	SyncByte = 0x7E

	// SeqDest is the fixed high nibble of every sequence byte
	SeqDest = 0x10
	SeqMask = 0x0F

	// OutputMax is the size of a scratch output buffer
	OutputMax = 512
)

// nextSeq returns the sequence byte following seq
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | SeqDest
}

// Bootstrap command IDs, fixed so a host can fetch the dictionary
// before it knows any other ID
const (
	IdentifyResponseID = 0
	IdentifyID         = 1
)
