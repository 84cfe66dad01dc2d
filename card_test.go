package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"candlecard/blow"
	"candlecard/cue"
	"candlecard/greeting"

	"github.com/jonboulle/clockwork"
)

type chanSource struct {
	frames chan []byte
	err    error

	mu    sync.Mutex
	stops int
}

func newChanSource() *chanSource {
	return &chanSource{frames: make(chan []byte)}
}

func (s *chanSource) Start(ctx context.Context) (<-chan []byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.frames, nil
}

func (s *chanSource) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

type recordingSink struct {
	events chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan string, 64)}
}

func (s *recordingSink) DetectorState(st blow.State) {
	s.events <- fmt.Sprintf("state armed=%v latched=%v", st.Armed, st.Latched)
}

func (s *recordingSink) BlownOut() { s.events <- "blown_out" }

func (s *recordingSink) PermissionDenied(error) { s.events <- "permission_denied" }

func (s *recordingSink) StreamEnded() { s.events <- "stream_ended" }

func (s *recordingSink) waitFor(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.events:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

type opsBackend struct {
	mu       sync.Mutex
	ops      []string
	unlocked bool
}

func (b *opsBackend) add(op string) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

func (b *opsBackend) Unlock() error {
	b.mu.Lock()
	b.unlocked = true
	b.mu.Unlock()
	return nil
}

func (b *opsBackend) Open(uri string) (cue.Handle, error) {
	b.add("open " + uri)
	return &opsHandle{b: b}, nil
}

func (b *opsBackend) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.ops)
}

type opsHandle struct{ b *opsBackend }

func (h *opsHandle) Play() error {
	h.b.add("play")
	return nil
}

func (h *opsHandle) Pause() { h.b.add("pause") }

func (h *opsHandle) Seek(d time.Duration) error {
	h.b.add(fmt.Sprintf("seek %v", d))
	return nil
}

func (h *opsHandle) SetVolume(v float64) { h.b.add(fmt.Sprintf("volume %.1f", v)) }

func (h *opsHandle) Buffered() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (h *opsHandle) Close() error {
	h.b.add("close")
	return nil
}

type cardFixture struct {
	card    *card
	src     *chanSource
	clock   *clockwork.FakeClock
	backend *opsBackend
	sink    *recordingSink
}

func newCardFixture(t *testing.T) *cardFixture {
	t.Helper()
	f := &cardFixture{
		src:     newChanSource(),
		clock:   clockwork.NewFakeClock(),
		backend: &opsBackend{},
		sink:    newRecordingSink(),
	}
	det := blow.New(f.src, blow.Config{Clock: f.clock})
	player := cue.NewPlayer(f.backend, cue.Options{Clock: f.clock})
	f.card = newCard(greeting.Default(), det, player, f.sink, f.clock)
	t.Cleanup(f.card.Close)
	return f
}

func (f *cardFixture) blow(t *testing.T) {
	t.Helper()
	f.src.frames <- bytes.Repeat([]byte{200}, 1024)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("confirmation never scheduled: %v", err)
	}
	f.clock.Advance(blow.DefaultConfirmDelay)
	f.sink.waitFor(t, "blown_out")
}

func TestCardBlowOutPlaysMusic(t *testing.T) {
	f := newCardFixture(t)
	if err := f.card.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.backend.mu.Lock()
	unlocked := f.backend.unlocked
	f.backend.mu.Unlock()
	if !unlocked {
		t.Error("opening the card should unlock audio")
	}
	f.sink.waitFor(t, "state armed=true latched=false")

	f.blow(t)

	want := []string{"open music.mp3", "volume 0.5", "play", "seek 4s"}
	if got := f.backend.snapshot(); !slices.Equal(got, want) {
		t.Errorf("cue ops = %v, want %v", got, want)
	}
	if !f.card.State().Latched {
		t.Error("detector not latched after blow out")
	}
	if n := f.card.Celebrations(); n != 1 {
		t.Errorf("celebrations = %d, want 1", n)
	}
}

func TestCardResetRelights(t *testing.T) {
	f := newCardFixture(t)
	if err := f.card.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.blow(t)

	f.card.Reset()
	f.sink.waitFor(t, "state armed=true latched=false")

	ops := f.backend.snapshot()
	if tail := ops[len(ops)-3:]; !slices.Equal(tail, []string{"pause", "seek 0s", "close"}) {
		t.Errorf("reset should stop the music, ops = %v", ops)
	}

	f.blow(t)
	if n := f.card.Celebrations(); n != 2 {
		t.Errorf("celebrations = %d, want 2", n)
	}
}

func TestCardPermissionDenied(t *testing.T) {
	f := newCardFixture(t)
	f.src.err = errors.New("no microphone")

	err := f.card.Open(context.Background())
	if !errors.Is(err, blow.ErrPermissionDenied) {
		t.Fatalf("Open() = %v, want ErrPermissionDenied", err)
	}
	f.sink.waitFor(t, "permission_denied")
	if f.card.State().Armed {
		t.Error("armed without a microphone")
	}

	f.src.err = nil
	if err := f.card.Start(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !f.card.State().Armed {
		t.Error("retry did not arm the detector")
	}
}

func TestCardCloseIdempotent(t *testing.T) {
	f := newCardFixture(t)
	if err := f.card.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.card.Close()
	f.card.Close()

	f.src.mu.Lock()
	defer f.src.mu.Unlock()
	if f.src.stops == 0 {
		t.Error("closing the card should release the microphone")
	}
}
