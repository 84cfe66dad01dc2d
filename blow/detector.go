// Package blow turns microphone loudness into a one-shot "candles blown out"
// event.
//
// A frame whose mean bin level is above the threshold marks the detector as
// blowing and, if no confirmation is pending, schedules one. The confirmation
// is committed once scheduled: a drop in volume does not cancel it, only Reset
// or Stop do. After it fires the detector is latched and ignores samples until
// Reset.
package blow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"candlecard/analyser"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	DefaultThreshold    = 50.0
	DefaultConfirmDelay = 500 * time.Millisecond
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrClosed           = errors.New("detector closed")
	// ErrStarting is returned by Start while another Start is still
	// acquiring the source.
	ErrStarting = errors.New("microphone start already in progress")
)

// Source delivers frames of frequency bins. The channel is closed when the
// stream ends on its own. Stop must be safe to call more than once.
type Source interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop()
}

type State struct {
	Armed   bool
	Blowing bool
	Latched bool
	Pending bool // confirmation scheduled
}

type EventType int

const (
	EventState EventType = iota
	EventBlownOut
	EventPermissionDenied
	EventStreamEnded
)

func (t EventType) String() string {
	switch t {
	case EventState:
		return "state"
	case EventBlownOut:
		return "blown_out"
	case EventPermissionDenied:
		return "permission_denied"
	case EventStreamEnded:
		return "stream_ended"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

type Event struct {
	Type  EventType
	State State
	Level float64 // mean of the frame that caused the event
	Err   error
	At    time.Time
}

type Config struct {
	Threshold    float64
	ConfirmDelay time.Duration
	Clock        clockwork.Clock
	Logger       *zerolog.Logger
}

type Detector struct {
	src       Source
	threshold float64
	delay     time.Duration
	clock     clockwork.Clock
	log       *zerolog.Logger

	mu           sync.Mutex
	state        State
	epoch        uint64 // invalidates scheduled confirmations
	session      uint64 // invalidates in-flight starts and sampling loops
	starting     bool
	timer        clockwork.Timer
	triggerLevel float64
	level        float64
	frames       uint64
	cancel       context.CancelFunc
	loopDone     chan struct{}
	closed       bool
	subs         []*subscriber
}

func New(src Source, cfg Config) *Detector {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.ConfirmDelay == 0 {
		cfg.ConfirmDelay = DefaultConfirmDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	return &Detector{
		src:       src,
		threshold: cfg.Threshold,
		delay:     cfg.ConfirmDelay,
		clock:     cfg.Clock,
		log:       cfg.Logger,
	}
}

// Start acquires the source and begins sampling. It is a no-op while armed and
// returns ErrStarting while another Start is in flight; the outcome of that
// call is reported by its own return and by events. A source failure is reported once as
// EventPermissionDenied and returned wrapped in ErrPermissionDenied; the
// detector stays unarmed until Start is called again.
//
// ctx bounds acquisition only; sampling runs until Stop or stream end.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.state.Armed {
		d.mu.Unlock()
		return nil
	}
	if d.starting {
		d.mu.Unlock()
		return ErrStarting
	}
	d.starting = true
	session := d.session
	d.mu.Unlock()

	frames, err := d.src.Start(ctx)

	d.mu.Lock()
	d.starting = false
	if d.closed || d.session != session {
		closed := d.closed
		d.mu.Unlock()
		if err == nil {
			d.src.Stop()
		}
		if closed {
			return ErrClosed
		}
		return nil
	}

	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) {
			err = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		d.log.Warn().Err(err).Msg("microphone unavailable")
		d.emitLocked(Event{Type: EventPermissionDenied, Err: err})
		d.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.loopDone = done
	d.state.Armed = true
	d.log.Info().Float64("threshold", d.threshold).Dur("confirm", d.delay).Msg("armed")
	d.emitLocked(Event{Type: EventState})
	d.mu.Unlock()

	go d.loop(loopCtx, session, frames, done)
	return nil
}

func (d *Detector) loop(ctx context.Context, session uint64, frames <-chan []byte, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case bins, ok := <-frames:
			if !ok {
				d.streamEnded(session)
				return
			}
			d.mu.Lock()
			if d.session == session {
				d.processLocked(bins)
			}
			d.mu.Unlock()
		}
	}
}

// Process evaluates one frame. It is ignored unless the detector is armed.
func (d *Detector) Process(bins []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processLocked(bins)
}

func (d *Detector) processLocked(bins []byte) {
	if d.closed || !d.state.Armed {
		return
	}
	level := analyser.Mean(bins)
	d.level = level
	d.frames++
	if d.state.Latched {
		return
	}

	blowing := level > d.threshold
	changed := blowing != d.state.Blowing
	d.state.Blowing = blowing

	if blowing && d.timer == nil {
		epoch := d.epoch
		d.triggerLevel = level
		d.state.Pending = true
		d.timer = d.clock.AfterFunc(d.delay, func() { d.confirm(epoch) })
		d.log.Debug().Float64("level", level).Msg("blow_triggered")
		changed = true
	}
	if changed {
		d.emitLocked(Event{Type: EventState, Level: level})
	}
}

func (d *Detector) confirm(epoch uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || epoch != d.epoch || !d.state.Armed || d.state.Latched {
		return
	}
	d.timer = nil
	d.state.Latched = true
	d.state.Pending = false
	d.state.Blowing = false
	d.log.Info().Float64("level", d.triggerLevel).Msg("blown_out")
	d.emitLocked(Event{Type: EventBlownOut, Level: d.triggerLevel})
}

func (d *Detector) streamEnded(session uint64) {
	d.mu.Lock()
	if d.closed || d.session != session {
		d.mu.Unlock()
		return
	}
	d.stopTimerLocked()
	d.session++
	d.state.Armed = false
	d.state.Blowing = false
	d.state.Pending = false
	d.level = 0
	cancel := d.cancel
	d.cancel = nil
	d.loopDone = nil
	d.src.Stop()
	d.log.Warn().Msg("microphone stream ended")
	d.emitLocked(Event{Type: EventStreamEnded})
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reset unlatches the detector and cancels any pending confirmation. The
// microphone stream is kept.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.stopTimerLocked()
	d.state.Blowing = false
	d.state.Latched = false
	d.state.Pending = false
	d.log.Info().Msg("reset")
	d.emitLocked(Event{Type: EventState})
}

// Stop releases the source and cancels sampling. Safe to call repeatedly,
// including after a failed Start.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.stopTimerLocked()
	d.session++
	wasArmed := d.state.Armed
	d.state.Armed = false
	d.state.Blowing = false
	d.state.Pending = false
	d.level = 0
	cancel, done := d.cancel, d.loopDone
	d.cancel, d.loopDone = nil, nil
	if wasArmed {
		d.emitLocked(Event{Type: EventState})
	}
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.src.Stop()
	if done != nil {
		<-done
	}
	if wasArmed {
		d.log.Info().Msg("stopped")
	}
}

// Close stops the detector and closes every subscription. Any timer or
// sampling callback that fires afterwards does nothing.
func (d *Detector) Close() {
	d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, sub := range d.subs {
		sub.close()
	}
	d.subs = nil
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Level is the mean of the most recent frame, for meters that poll.
func (d *Detector) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Frames counts frames evaluated while armed.
func (d *Detector) Frames() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Subscribe returns a channel of detector events. A subscriber that falls
// behind sees only the latest state, but never misses EventBlownOut,
// EventPermissionDenied or EventStreamEnded. The channel is closed by Close.
func (d *Detector) Subscribe(buffer int) <-chan Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	sub := newSubscriber(buffer)
	d.subs = append(d.subs, sub)
	return sub.ch
}

func (d *Detector) stopTimerLocked() {
	d.epoch++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Detector) emitLocked(ev Event) {
	ev.State = d.state
	ev.At = d.clock.Now()
	for _, sub := range d.subs {
		sub.push(ev)
	}
}
