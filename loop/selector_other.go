//go:build !linux && !windows

package loop

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectSelector is the portable fallback selector for non-Linux POSIX
// targets, grounded in original_source/events_io_select.h's existence as
// the original runtime's alternate backend. pselect is naturally
// level-triggered, so (unlike epollSelector) no edge-triggered re-arm
// bookkeeping is required: every registered direction is simply re-added
// to the fd_set on every wait call.
type selectSelector struct {
	fds map[int]*fdEntry
}

func newSelector() (selector, error) {
	return &selectSelector{fds: make(map[int]*fdEntry)}, nil
}

func (s *selectSelector) add(fd int, dir Direction, cb func()) error {
	e, ok := s.fds[fd]
	if !ok {
		e = &fdEntry{}
		s.fds[fd] = e
	}
	if dir == Read {
		if e.read != nil {
			return ErrDuplicate
		}
		e.read = cb
	} else {
		if e.write != nil {
			return ErrDuplicate
		}
		e.write = cb
	}
	return nil
}

func (s *selectSelector) remove(fd int, dir Direction) {
	e, ok := s.fds[fd]
	if !ok {
		return
	}
	if dir == Read {
		e.read = nil
	} else {
		e.write = nil
	}
	if e.read == nil && e.write == nil {
		delete(s.fds, fd)
	}
}

func (s *selectSelector) wait(timeout time.Duration) error {
	if len(s.fds) == 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil
	}
	var rset, wset unix.FdSet
	maxFD := 0
	for fd, e := range s.fds {
		if e.read != nil {
			fdSet(&rset, fd)
		}
		if e.write != nil {
			fdSet(&wset, fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, err := unix.Pselect(maxFD+1, &rset, &wset, nil, ts, nil)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for fd, e := range s.fds {
		if e.read != nil && fdIsSet(&rset, fd) {
			e.read()
		}
		if e.write != nil && fdIsSet(&wset, fd) {
			e.write()
		}
	}
	return nil
}

func (s *selectSelector) close() error {
	return nil
}

// TODO(portable-select): assumes 64-bit fd_set words; correct for the
// common amd64/arm64 BSD targets this is compiled for today.
func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
