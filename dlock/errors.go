package dlock

import (
	"errors"

	"github.com/coropile/cono/loop"
)

var (
	// ErrAssert is returned by Release when called without a matching
	// held Acquire (recursion count already zero).
	ErrAssert = errors.New("dlock: release without matching acquire")

	// ErrCancelled is returned by Acquire when the lock is finalized
	// (Close) while the call is pending, or the calling coroutine is
	// itself cancelled. Shared with the loop and rpc packages (same
	// sentinel value) so a single errors.Is check catches both a
	// locally-observed Close and a suspension point cancelled by the
	// underlying coroutine runtime.
	ErrCancelled = loop.ErrCancelled
)
