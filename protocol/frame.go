package protocol

import "bytes"

// frameScanner splits a byte stream into frames, dropping to the next
// sync byte after a corrupt frame.
type frameScanner struct {
	lost bool // looking for a sync byte
}

// next returns the next complete frame in data and the number of bytes
// consumed. frame is nil when more data is needed. resynced reports that
// sync was recovered while consuming.
func (s *frameScanner) next(data []byte) (frame []byte, consumed int, resynced bool) {
	for consumed < len(data) {
		rest := data[consumed:]

		if s.lost {
			i := bytes.IndexByte(rest, SyncByte)
			if i < 0 {
				return nil, len(data), resynced
			}
			consumed += i + 1
			s.lost = false
			resynced = true
			continue
		}

		if rest[0] == SyncByte {
			consumed++
			continue
		}

		n, ok := checkFrame(rest)
		if !ok {
			s.lost = true
			continue
		}
		if n == 0 {
			return nil, consumed, resynced
		}
		return rest[:n], consumed + n, resynced
	}
	return nil, consumed, resynced
}

// reset forgets any partial sync state
func (s *frameScanner) reset() {
	s.lost = false
}

// checkFrame validates the frame at the start of data. It returns n == 0
// with ok set when the frame is still incomplete.
func checkFrame(data []byte) (n int, ok bool) {
	if len(data) < FrameMin {
		return 0, true
	}
	n = int(data[FramePosLen])
	if n < FrameMin || n > FrameMax {
		return 0, false
	}
	if data[FramePosSeq]&^SeqMask != SeqDest {
		return 0, false
	}
	if len(data) < n {
		return 0, true
	}
	if data[n-1] != SyncByte {
		return 0, false
	}
	crc := uint16(data[n-FrameTrailerSize])<<8 | uint16(data[n-FrameTrailerSize+1])
	if crc != CRC16(data[:n-FrameTrailerSize]) {
		return 0, false
	}
	return n, true
}

// framePayload returns the payload of a validated frame
func framePayload(frame []byte) []byte {
	return frame[FrameHeaderSize : len(frame)-FrameTrailerSize]
}

// encodeFrame writes a complete frame to output. The payload callback
// writes directly after the header; length and CRC are patched in after.
func encodeFrame(output OutputBuffer, seq uint8, payload func(output OutputBuffer)) {
	start := output.CurPosition()
	output.Output([]byte{0, seq})
	if payload != nil {
		payload(output)
	}

	length := len(output.DataSince(start)) + FrameTrailerSize
	output.Update(start, uint8(length))

	crc := CRC16(output.DataSince(start))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), SyncByte})
}
