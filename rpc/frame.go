package rpc

import "encoding/binary"

// FrameType is the 1-byte frame discriminator.
type FrameType uint8

const (
	FrameRequest FrameType = iota
	FrameResponse
	FrameResponseError
)

func (t FrameType) String() string {
	switch t {
	case FrameRequest:
		return "REQUEST"
	case FrameResponse:
		return "RESPONSE"
	case FrameResponseError:
		return "RESPONSE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// frameHeaderSize is type:1 + size:3 (u24 big-endian) + id:4.
const frameHeaderSize = 8

// DefaultMaxFrameSize matches spec.md's recommended channel constant.
const DefaultMaxFrameSize = 65535

func encodeHeader(typ FrameType, id uint32, size int) [frameHeaderSize]byte {
	var b [frameHeaderSize]byte
	b[0] = byte(typ)
	b[1] = byte(size >> 16)
	b[2] = byte(size >> 8)
	b[3] = byte(size)
	binary.BigEndian.PutUint32(b[4:8], id)
	return b
}

// parsedFrame is a frame fully present in the read buffer.
type parsedFrame struct {
	typ     FrameType
	id      uint32
	payload []byte
}

// parseFrame extracts one frame from the front of buf, if a complete one
// is present. ok is false if more data is needed. An oversize size field
// (relative to maxFrameSize) is reported via err, since that is a
// protocol violation rather than a need for more data.
func parseFrame(buf []byte, maxFrameSize uint32) (frame parsedFrame, rest []byte, ok bool, err error) {
	if len(buf) < frameHeaderSize {
		return parsedFrame{}, buf, false, nil
	}
	size := uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	if size > maxFrameSize {
		return parsedFrame{}, buf, false, &FrameError{
			Err:  ErrProtocol,
			Type: FrameType(buf[0]),
			ID:   binary.BigEndian.Uint32(buf[4:8]),
		}
	}
	total := frameHeaderSize + int(size)
	if len(buf) < total {
		return parsedFrame{}, buf, false, nil
	}
	frame = parsedFrame{
		typ:     FrameType(buf[0]),
		id:      binary.BigEndian.Uint32(buf[4:8]),
		payload: buf[frameHeaderSize:total],
	}
	return frame, buf[total:], true, nil
}
