//go:build linux

package loop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// eventfdPingPipe realizes the ping pipe with a single Linux eventfd,
// grounded in eventloop/wakeup_linux.go. An eventfd is both read and
// write end, simpler than the anonymous-pipe fallback used elsewhere.
type eventfdPingPipe struct {
	fd     int
	posted atomic.Bool
}

func newPingPipe() (pingPipe, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdPingPipe{fd: fd}, nil
}

func (p *eventfdPingPipe) readFD() int { return p.fd }

func (p *eventfdPingPipe) trigger() {
	if p.posted.CompareAndSwap(false, true) {
		var buf [8]byte
		buf[7] = 1
		_, _ = unix.Write(p.fd, buf[:])
	}
}

func (p *eventfdPingPipe) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.fd, buf[:])
		if err != nil {
			break
		}
	}
	p.posted.Store(false)
}

func (p *eventfdPingPipe) close() error {
	return unix.Close(p.fd)
}
