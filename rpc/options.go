package rpc

import "github.com/joeycumines/logiface"

// Option configures a Channel at construction time.
type Option func(*config)

type config struct {
	log          *logiface.Logger[logiface.Event]
	maxFrameSize uint32
}

// WithLogger attaches a structured logger. Omit for a silent channel.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(c *config) { c.log = log }
}

// WithMaxFrameSize overrides DefaultMaxFrameSize. Both peers of a
// channel must agree on this value.
func WithMaxFrameSize(n uint32) Option {
	return func(c *config) { c.maxFrameSize = n }
}
