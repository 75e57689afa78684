package dlock

import "github.com/joeycumines/logiface"

// Option configures a Lock at construction time.
type Option func(*config)

type config struct {
	log *logiface.Logger[logiface.Event]
}

// WithLogger attaches a structured logger. Omit for a silent lock.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(c *config) { c.log = log }
}
