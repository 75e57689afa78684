// Command rpcdemo is a non-installed smoke-test program: it spawns an
// in-process "add" RPC server and a client that calls it repeatedly from
// concurrent coroutines, mirroring testable property S7 of the runtime
// specification. It exists for manual exercising, not as a product CLI
// (spec.md places main.c's CLI front-end out of scope).
package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/unix"

	"github.com/coropile/cono/internal/obslog"
	"github.com/coropile/cono/loop"
	"github.com/coropile/cono/rpc"
	"github.com/coropile/cono/wire"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socketpair: %w", err)
	}

	lg := obslog.Debug(os.Stderr)

	l, err := loop.New(loop.WithLogger(lg))
	if err != nil {
		return err
	}
	defer l.Close()

	server, err := rpc.NewChannel(fds[1], rpc.WithLogger(lg))
	if err != nil {
		return err
	}
	addSig := wire.MustParseSignature("i4")
	var sum int32
	server.Export("add", addSig, addSig, func(in []byte) ([]byte, error) {
		var n int32
		if _, err := wire.Decode(addSig, in, &n); err != nil {
			return nil, err
		}
		sum += n
		return wire.Encode(addSig, sum)
	})
	if _, err := l.Spawn(server.Run); err != nil {
		return err
	}

	client, err := rpc.NewChannel(fds[0], rpc.WithLogger(lg))
	if err != nil {
		return err
	}
	if _, err := l.Spawn(client.Run); err != nil {
		return err
	}

	const calls = 16
	done := 0
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		i := i
		if _, err := l.Spawn(func(l *loop.Loop) error {
			var out int32
			errs[i] = client.Call(l, "add", addSig, int32(1), addSig, &out)
			done++
			return nil
		}); err != nil {
			return err
		}
	}
	if _, err := l.Spawn(func(l *loop.Loop) error {
		for done < calls {
			if err := l.Yield(); err != nil {
				return err
			}
		}
		return client.Close(l)
	}); err != nil {
		return err
	}

	if err := l.Run(); err != nil {
		return err
	}
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("call %d: %w", i, err)
		}
	}
	fmt.Printf("final sum=%d (want %d)\n", sum, calls)
	return nil
}
