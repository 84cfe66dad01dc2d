// Package cue plays the celebration music: one handle at a time, started at an
// offset, never fatal.
package cue

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const DefaultLoadTimeout = 10 * time.Second

// ErrNotReady is returned by Handle.Play or Seek before enough data is loaded.
var ErrNotReady = errors.New("audio not ready")

type Handle interface {
	Play() error
	Pause()
	Seek(offset time.Duration) error
	SetVolume(v float64) // linear, 0..1
	// Buffered is closed once the resource has loaded or failed to load.
	Buffered() <-chan struct{}
	Close() error
}

type Backend interface {
	// Unlock primes the output device. Called at most once successfully.
	Unlock() error
	Open(uri string) (Handle, error)
}

// ReportFunc is told how each Play request ended: err is nil once audio is
// playing.
type ReportFunc func(uri string, offset time.Duration, volume float64, err error)

type Options struct {
	LoadTimeout time.Duration
	Clock       clockwork.Clock
	Logger      *zerolog.Logger
	Report      ReportFunc
}

type Player struct {
	backend Backend
	timeout time.Duration
	clock   clockwork.Clock
	log     *zerolog.Logger
	report  ReportFunc

	mu        sync.Mutex
	unlocked  bool
	handle    Handle
	gen       uint64
	playing   bool
	retryStop chan struct{}
	wg        sync.WaitGroup
}

func NewPlayer(backend Backend, opts Options) *Player {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Report == nil {
		opts.Report = func(string, time.Duration, float64, error) {}
	}
	return &Player{
		backend: backend,
		timeout: opts.LoadTimeout,
		clock:   opts.Clock,
		log:     opts.Logger,
		report:  opts.Report,
	}
}

// Unlock primes audio output. Failures are logged and retried by the next
// Play.
func (p *Player) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlockLocked()
}

func (p *Player) unlockLocked() {
	if p.unlocked {
		return
	}
	if err := p.backend.Unlock(); err != nil {
		p.log.Debug().Err(err).Msg("audio unlock failed")
		return
	}
	p.unlocked = true
	p.log.Debug().Msg("audio unlocked")
}

func (p *Player) Unlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unlocked
}

// Play replaces the current handle with uri and starts it at offset. The old
// handle is paused, rewound and closed before the new one is opened. If the
// eager start fails, one more attempt is made once the resource reports it is
// buffered (or the load timeout passes). Failures are logged and swallowed.
func (p *Player) Play(uri string, offset time.Duration, volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked()
	p.unlockLocked()

	h, err := p.backend.Open(uri)
	if err != nil {
		p.log.Warn().Err(err).Str("uri", uri).Msg("open cue")
		p.report(uri, offset, volume, err)
		return
	}
	p.gen++
	gen := p.gen
	p.handle = h
	h.SetVolume(volume)

	err = p.startLocked(h, offset)
	if err == nil {
		p.report(uri, offset, volume, nil)
		return
	}
	p.log.Debug().Err(err).Str("uri", uri).Msg("eager play failed, waiting for buffer")

	stop := make(chan struct{})
	p.retryStop = stop
	p.wg.Add(1)
	go p.retry(gen, h, uri, offset, volume, stop)
}

func (p *Player) retry(gen uint64, h Handle, uri string, offset time.Duration, volume float64, stop chan struct{}) {
	defer p.wg.Done()

	timer := p.clock.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-h.Buffered():
	case <-timer.Chan():
	case <-stop:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.retryStop = nil
	if err := p.startLocked(h, offset); err != nil {
		p.log.Warn().Err(err).Str("uri", uri).Msg("cue playback failed")
		p.report(uri, offset, volume, err)
		return
	}
	p.report(uri, offset, volume, nil)
}

// startLocked seeks only after Play succeeds; seeking an unstarted resource
// is not reliable.
func (p *Player) startLocked(h Handle, offset time.Duration) error {
	if err := h.Play(); err != nil {
		return err
	}
	if offset > 0 {
		if err := h.Seek(offset); err != nil {
			p.log.Warn().Err(err).Dur("offset", offset).Msg("seek cue")
		}
	}
	p.playing = true
	return nil
}

func (p *Player) releaseLocked() {
	if p.retryStop != nil {
		close(p.retryStop)
		p.retryStop = nil
	}
	p.gen++
	p.playing = false
	h := p.handle
	p.handle = nil
	if h == nil {
		return
	}
	h.Pause()
	_ = h.Seek(0)
	if err := h.Close(); err != nil {
		p.log.Debug().Err(err).Msg("close cue")
	}
}

// Stop pauses, rewinds and releases the current handle. Idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops playback and waits for pending retries to exit.
func (p *Player) Close() {
	p.Stop()
	p.wg.Wait()
}
