package rpc

import (
	"bytes"
	"encoding/binary"
)

// encodeRemoteError builds a RESPONSE_ERROR payload: code:4 (big-endian)
// followed by NUL-terminated name and text strings.
func encodeRemoteError(code ErrorCode, name, text string) []byte {
	b := make([]byte, 0, 4+len(name)+1+len(text)+1)
	var codeBuf [4]byte
	binary.BigEndian.PutUint32(codeBuf[:], uint32(code))
	b = append(b, codeBuf[:]...)
	b = append(b, name...)
	b = append(b, 0)
	b = append(b, text...)
	b = append(b, 0)
	return b
}

func decodeRemoteError(payload []byte) (*RemoteError, error) {
	if len(payload) < 4 {
		return nil, ErrProtocol
	}
	code := ErrorCode(binary.BigEndian.Uint32(payload[:4]))
	rest := payload[4:]
	nameEnd := bytes.IndexByte(rest, 0)
	if nameEnd < 0 {
		return nil, ErrProtocol
	}
	name := string(rest[:nameEnd])
	rest = rest[nameEnd+1:]
	textEnd := bytes.IndexByte(rest, 0)
	if textEnd < 0 {
		return nil, ErrProtocol
	}
	text := string(rest[:textEnd])
	return &RemoteError{Code: code, Name: name, Text: text}, nil
}
