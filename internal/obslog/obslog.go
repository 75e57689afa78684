// Package obslog wires this repository's logiface facade to a concrete
// zerolog backend, the way the teacher repository's own consumers
// (e.g. sql/export) hold a type-erased *logiface.Logger[logiface.Event]
// while constructing it from a specific backend's LoggerFactory.
package obslog

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// New builds a type-erased logger backed by zerolog, writing
// human-readable output to w at the given level. Pass nil for w to use
// os.Stderr.
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	z := zerolog.New(console).With().Timestamp().Logger()
	return izerolog.L.New(
		izerolog.L.WithZerolog(z),
		izerolog.L.WithLevel(level),
	).Logger()
}

// Debug returns a logger at debug level, the verbosity used by this
// repository's own coroutine/channel/lock trace points (see loop.WithLogger,
// rpc.WithLogger, dlock.WithLogger).
func Debug(w io.Writer) *logiface.Logger[logiface.Event] {
	return New(w, logiface.LevelDebug)
}
