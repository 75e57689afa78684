//go:build !linux

package loop

import (
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// pipePingPipe is the portable fallback ping pipe: an anonymous pipe with
// its read end set non-blocking, per the wire-level spec for the ping
// pipe (one-byte writes, short reads/writes both treated as success).
type pipePingPipe struct {
	r, w   *os.File
	posted atomic.Bool
}

func newPingPipe() (pingPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	return &pipePingPipe{r: r, w: w}, nil
}

func (p *pipePingPipe) readFD() int { return int(p.r.Fd()) }

func (p *pipePingPipe) trigger() {
	if p.posted.CompareAndSwap(false, true) {
		_, _ = p.w.Write([]byte{1})
	}
}

func (p *pipePingPipe) drain() {
	var buf [256]byte
	for {
		n, err := p.r.Read(buf[:])
		if n == 0 || err != nil {
			break
		}
	}
	p.posted.Store(false)
}

func (p *pipePingPipe) close() error {
	_ = p.w.Close()
	return p.r.Close()
}
