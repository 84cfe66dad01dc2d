package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"candlecard/blow"
	"candlecard/cue"
	"candlecard/greeting"
	"candlecard/log"

	"github.com/jonboulle/clockwork"
)

// card connects the blow detector to the music cue and the display.
type card struct {
	greeting greeting.Card
	detector *blow.Detector
	player   *cue.Player
	clock    clockwork.Clock
	sink     EventSink

	mu           sync.Mutex
	openedAt     time.Time
	firstLoud    time.Time
	peak         float64
	celebrations int

	watchDone chan struct{}
	closeOnce sync.Once
}

func newCard(g greeting.Card, det *blow.Detector, player *cue.Player, sink EventSink, clock clockwork.Clock) *card {
	if sink == nil {
		sink = nopSink{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &card{
		greeting:  g,
		detector:  det,
		player:    player,
		clock:     clock,
		sink:      sink,
		watchDone: make(chan struct{}),
	}
	go c.watch(det.Subscribe(32))
	return c
}

// Open is the user's "open card" gesture: it unlocks audio output and starts
// listening for the blow.
func (c *card) Open(ctx context.Context) error {
	c.player.Unlock()
	c.mu.Lock()
	if c.openedAt.IsZero() {
		c.openedAt = c.clock.Now()
	}
	c.mu.Unlock()
	log.Info("card_opened")
	return c.Start(ctx)
}

// Start (re)acquires the microphone. It does nothing while already listening
// or while an earlier Start is still waiting on the microphone.
func (c *card) Start(ctx context.Context) error {
	err := c.detector.Start(ctx)
	if errors.Is(err, blow.ErrStarting) {
		log.Info("microphone_start_pending")
		return nil
	}
	if err != nil {
		log.Warnf("microphone start: %v", err)
	}
	return err
}

// Reset relights the candles and silences the music.
func (c *card) Reset() {
	c.detector.Reset()
	c.player.Stop()

	c.mu.Lock()
	c.openedAt = c.clock.Now()
	c.firstLoud = time.Time{}
	c.peak = 0
	c.mu.Unlock()
	log.Info("reset")
}

func (c *card) Level() float64 {
	return c.detector.Level()
}

func (c *card) State() blow.State {
	return c.detector.State()
}

func (c *card) WishText() string {
	return c.greeting.WishText()
}

func (c *card) Celebrations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.celebrations
}

// Close stops listening and playback. Safe to call more than once.
func (c *card) Close() {
	c.closeOnce.Do(func() {
		c.detector.Close()
		<-c.watchDone
		c.player.Close()
	})
}

func (c *card) watch(events <-chan blow.Event) {
	defer close(c.watchDone)
	for ev := range events {
		switch ev.Type {
		case blow.EventState:
			c.noteLevel(ev)
			c.sink.DetectorState(ev.State)
		case blow.EventBlownOut:
			c.blownOut(ev)
		case blow.EventPermissionDenied:
			log.Warnf("permission_denied: %v", ev.Err)
			c.sink.PermissionDenied(ev.Err)
		case blow.EventStreamEnded:
			log.Warn("stream_ended")
			c.sink.DetectorState(ev.State)
			c.sink.StreamEnded()
		}
	}
}

func (c *card) noteLevel(ev blow.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ev.State.Blowing {
		return
	}
	if c.firstLoud.IsZero() {
		c.firstLoud = ev.At
	}
	c.peak = max(c.peak, ev.Level)
}

func (c *card) blownOut(ev blow.Event) {
	c.player.Play(c.greeting.Music, c.greeting.MusicOffset, c.greeting.MusicVolume)

	c.mu.Lock()
	c.celebrations++
	m := log.BlowMetrics{
		PeakLevel:   max(c.peak, ev.Level),
		FramesSeen:  c.detector.Frames(),
		Celebration: c.celebrations,
	}
	if !c.firstLoud.IsZero() {
		m.ConfirmMs = float64(ev.At.Sub(c.firstLoud)) / float64(time.Millisecond)
		if !c.openedAt.IsZero() {
			m.TriggerMs = float64(c.firstLoud.Sub(c.openedAt)) / float64(time.Millisecond)
		}
	}
	c.mu.Unlock()

	log.Blow(m)
	log.Celebration(c.greeting.Name, c.greeting.Candles)
	c.sink.DetectorState(ev.State)
	c.sink.BlownOut()
}
