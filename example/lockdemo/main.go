// Command lockdemo is a non-installed smoke-test program exercising the
// distributed lock across three participants wired pairwise over
// socketpairs, mirroring testable scenario S9 of the runtime
// specification: each participant acquires and releases the lock a
// handful of times while the others contend for it, and the program
// reports the total number of acquisitions observed.
package main

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/coropile/cono/dlock"
	"github.com/coropile/cono/internal/obslog"
	"github.com/coropile/cono/loop"
	"github.com/coropile/cono/rpc"
)

const rounds = 5

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	lg := obslog.Debug(os.Stderr)

	l, err := loop.New(loop.WithLogger(lg))
	if err != nil {
		return err
	}
	defer l.Close()

	locks := []*dlock.Lock{
		dlock.New(1, dlock.WithLogger(lg)),
		dlock.New(2, dlock.WithLogger(lg)),
		dlock.New(3, dlock.WithLogger(lg)),
	}
	for i := 0; i < len(locks); i++ {
		for j := i + 1; j < len(locks); j++ {
			if err := connect(l, locks[i], locks[j]); err != nil {
				return err
			}
		}
	}

	var held atomic.Int32
	var totalAcquires atomic.Int32
	errs := make(chan error, len(locks))
	for _, lk := range locks {
		lk := lk
		if _, err := l.Spawn(func(l *loop.Loop) error {
			for r := 0; r < rounds; r++ {
				if err := lk.Acquire(l); err != nil {
					errs <- err
					return err
				}
				if held.Add(1) != 1 {
					panic("mutual exclusion violated")
				}
				totalAcquires.Add(1)
				held.Add(-1)
				if err := lk.Release(l); err != nil {
					errs <- err
					return err
				}
				if err := l.Yield(); err != nil {
					errs <- err
					return err
				}
			}
			errs <- nil
			return nil
		}); err != nil {
			return err
		}
	}

	if err := l.Run(); err != nil {
		return err
	}
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	fmt.Printf("total acquisitions=%d (want %d)\n", totalAcquires.Load(), rounds*len(locks))
	return nil
}

// connect registers each of a and b as the other's sole peer over a
// dedicated socketpair-backed channel pair.
func connect(l *loop.Loop, a, b *dlock.Lock) error {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return err
	}
	chA, err := rpc.NewChannel(fds[0])
	if err != nil {
		return err
	}
	chB, err := rpc.NewChannel(fds[1])
	if err != nil {
		return err
	}
	if _, err := l.Spawn(chA.Run); err != nil {
		return err
	}
	if _, err := l.Spawn(chB.Run); err != nil {
		return err
	}
	a.AddPeer(chA, "request", "release")
	b.AddPeer(chB, "request", "release")
	return nil
}
