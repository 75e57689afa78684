package rpc

import (
	"errors"
	"fmt"

	"github.com/coropile/cono/loop"
	"github.com/coropile/cono/wire"
)

var (
	// ErrProtocol is returned when a peer violates the framing contract
	// (oversize frame, unknown frame type, malformed REQUEST or
	// RESPONSE_ERROR payload). A partial frame is not an error: the
	// reader waits for the rest.
	ErrProtocol = errors.New("rpc: protocol violation")

	// ErrNotExported classifies a REQUEST that names an unknown method:
	// the serving side answers it with a NOT_EXPORTED RESPONSE_ERROR, and
	// the caller's *RemoteError matches it via errors.Is. No local
	// operation returns it directly.
	ErrNotExported = errors.New("rpc: method not exported")

	// ErrOverflow is returned when a handler's encoded output, or a
	// call's encoded arguments, would exceed the channel's configured
	// maximum frame size.
	ErrOverflow = errors.New("rpc: payload exceeds maximum frame size")

	// ErrClosed is returned by Call once the channel has been
	// finalized (peer closed, read/write error, or an
	// explicit Close).
	ErrClosed = errors.New("rpc: channel closed")
)

// ErrCancelled is the channel's cancellation sentinel, shared with the
// loop package: a pending call surfaces this exact error (via
// errors.Is) when the calling coroutine is cancelled, or when the
// channel is finalized while the call is outstanding.
var ErrCancelled = loop.ErrCancelled

// RemoteError reports a RESPONSE_ERROR frame received from the peer: its
// Name is a short classification the peer's error fell into (e.g.
// "NOT_EXPORTED", "TRUNCATED"), and Text is the peer's error message.
type RemoteError struct {
	Code ErrorCode
	Name string
	Text string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote error %s: %s", e.Name, e.Text)
}

// Is reports whether target is the sentinel error this RemoteError's Code
// corresponds to, so callers can errors.Is(err, wire.ErrTruncated) or
// errors.Is(err, ErrNotExported) against a RemoteError received from a
// peer the same way they would against a local failure.
func (e *RemoteError) Is(target error) bool {
	code, _ := classifyError(target)
	return code != CodeOther && code == e.Code
}

// Unwrap exposes the sentinel matching this RemoteError's Code, so
// errors.As and wrapping callers see through to the same classification
// classifyError assigns on the sending side.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeNotExported:
		return ErrNotExported
	case CodeTruncated:
		return wire.ErrTruncated
	case CodeSignSyntax:
		return wire.ErrSignSyntax
	case CodeOverflow:
		return ErrOverflow
	case CodeCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// FrameError wraps a protocol-level failure with the frame metadata that
// triggered it, for diagnostics.
type FrameError struct {
	Err  error
	Type FrameType
	ID   uint32
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("rpc: frame type=%s id=%d: %v", e.Type, e.ID, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// ErrorCode is the numeric classification sent in a RESPONSE_ERROR
// frame's code field, alongside the human-readable Name.
type ErrorCode uint32

const (
	CodeOther ErrorCode = iota
	CodeNotExported
	CodeTruncated
	CodeSignSyntax
	CodeAssert
	CodeProtocol
	CodeOverflow
	CodeCancelled
)

// classifyError maps a Go error into the wire (code, name) pair a
// RESPONSE_ERROR frame reports for it, for use by handlers whose
// failures should be distinguishable by the calling peer.
func classifyError(err error) (ErrorCode, string) {
	switch {
	case errors.Is(err, ErrNotExported):
		return CodeNotExported, "NOT_EXPORTED"
	case errors.Is(err, wire.ErrTruncated):
		return CodeTruncated, "TRUNCATED"
	case errors.Is(err, wire.ErrSignSyntax):
		return CodeSignSyntax, "SIGN_SYNTAX"
	case errors.Is(err, ErrOverflow):
		return CodeOverflow, "OVERFLOW"
	case errors.Is(err, ErrCancelled):
		return CodeCancelled, "CANCELLED"
	default:
		return CodeOther, "ERROR"
	}
}
