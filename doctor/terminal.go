package doctor

import (
	"context"
	"fmt"
	"os"

	"candlecard/shutdown"

	"golang.org/x/term"
)

// terminal remembers the stdin mode the doctor started with, so a check that
// leaves it raw (the device picker, a crashed audio backend) can be undone.
type terminal struct {
	fd    int
	state *term.State
}

func saveTerminal() *terminal {
	t := &terminal{fd: int(os.Stdin.Fd())}
	if term.IsTerminal(t.fd) {
		t.state, _ = term.GetState(t.fd)
	}
	return t
}

func (t *terminal) restore() {
	if t.state != nil {
		term.Restore(t.fd, t.state)
	}
}

// exitOnInterrupt restores the terminal and exits 1 on the first termination
// signal. The returned func stops watching.
func (t *terminal) exitOnInterrupt() (stop func()) {
	ctx, cancel := shutdown.Context(context.Background())
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		select {
		case <-done:
			return
		default:
		}
		t.restore()
		fmt.Fprintln(os.Stderr, "\nInterrupted")
		os.Exit(1)
	}()
	return func() {
		close(done)
		cancel()
	}
}
