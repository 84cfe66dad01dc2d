package cue

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"
)

const (
	speakerRate = beep.SampleRate(44100)

	// Unlock tick: short, high and almost inaudible.
	tickFreq     = 1200
	tickDuration = 0.02
	tickVolume   = 0.002
	tickDecay    = 60
)

var errClosed = errors.New("cue handle closed")

// SpeakerBackend plays files through the default output device.
type SpeakerBackend struct {
	log *zerolog.Logger

	mu     sync.Mutex
	inited bool
}

func NewSpeakerBackend(logger *zerolog.Logger) *SpeakerBackend {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SpeakerBackend{log: logger}
}

func (b *SpeakerBackend) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inited {
		return nil
	}
	if err := speaker.Init(speakerRate, speakerRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	b.inited = true
	return nil
}

// Unlock opens the output device and plays a near-silent tick through it.
func (b *SpeakerBackend) Unlock() error {
	if err := b.init(); err != nil {
		return err
	}
	speaker.Play(sliceStreamer(generateTick(speakerRate, tickFreq, tickDuration, tickVolume, tickDecay)))
	return nil
}

func (b *SpeakerBackend) Open(uri string) (Handle, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	h := &speakerHandle{
		uri:      uri,
		volume:   1,
		buffered: make(chan struct{}),
		log:      b.log,
	}
	go h.load()
	return h, nil
}

// Close releases the output device.
func (b *SpeakerBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inited {
		speaker.Close()
		b.inited = false
	}
}

type speakerHandle struct {
	uri      string
	buffered chan struct{}
	log      *zerolog.Logger

	mu      sync.Mutex
	volume  float64
	stream  beep.StreamSeekCloser
	format  beep.Format
	ctrl    *beep.Ctrl
	vol     *effects.Volume
	pos     *position
	loadErr error
	started bool
	closed  bool
}

func (h *speakerHandle) load() {
	defer close(h.buffered)

	stream, format, err := decodeFile(h.uri)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.loadErr = err
		return
	}
	if h.closed {
		stream.Close()
		return
	}

	var s beep.Streamer = stream
	if format.SampleRate != speakerRate {
		s = beep.Resample(4, format.SampleRate, speakerRate, s)
	}
	h.pos = &position{s: s}
	h.vol = &effects.Volume{Streamer: h.pos, Base: 2}
	setVolume(h.vol, h.volume)
	h.ctrl = &beep.Ctrl{Streamer: h.vol, Paused: true}
	h.stream = stream
	h.format = format
	h.log.Debug().
		Str("uri", h.uri).
		Int("rate", int(format.SampleRate)).
		Dur("length", format.SampleRate.D(stream.Len())).
		Msg("cue loaded")
}

func decodeFile(uri string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, beep.Format{}, err
	}
	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(uri)); ext {
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".wav":
		stream, format, err = wav.Decode(f)
	case ".flac":
		stream, format, err = flac.Decode(f)
	default:
		err = fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(uri), err)
	}
	return withFile(stream, f), format, nil
}

// withFile closes f along with decoders that do not own their reader.
func withFile(s beep.StreamSeekCloser, f io.Closer) beep.StreamSeekCloser {
	return &fileStream{StreamSeekCloser: s, f: f}
}

type fileStream struct {
	beep.StreamSeekCloser
	f io.Closer
}

func (s *fileStream) Close() error {
	err := s.StreamSeekCloser.Close()
	if ferr := s.f.Close(); err == nil && !errors.Is(ferr, os.ErrClosed) {
		err = ferr
	}
	return err
}

func (h *speakerHandle) Buffered() <-chan struct{} { return h.buffered }

func (h *speakerHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.closed:
		return errClosed
	case h.loadErr != nil:
		return h.loadErr
	case h.ctrl == nil:
		return ErrNotReady
	}
	if !h.started {
		h.started = true
		speaker.Play(h.ctrl)
	}
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (h *speakerHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctrl == nil {
		return
	}
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *speakerHandle) Seek(offset time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil {
		return ErrNotReady
	}
	n := min(h.format.SampleRate.N(offset), h.stream.Len())
	speaker.Lock()
	defer speaker.Unlock()
	if err := h.stream.Seek(n); err != nil {
		return fmt.Errorf("seek %v: %w", offset, err)
	}
	h.pos.set(speakerRate.N(h.format.SampleRate.D(n)))
	return nil
}

func (h *speakerHandle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
	if h.vol == nil {
		return
	}
	speaker.Lock()
	setVolume(h.vol, v)
	speaker.Unlock()
}

// Position reports how far playback has got.
func (h *speakerHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pos == nil {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return speakerRate.D(h.pos.n)
}

func (h *speakerHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.ctrl != nil {
		speaker.Lock()
		h.ctrl.Streamer = nil
		speaker.Unlock()
	}
	if h.stream != nil {
		return h.stream.Close()
	}
	return nil
}

// setVolume maps a linear gain onto effects.Volume's base-2 exponent.
func setVolume(v *effects.Volume, linear float64) {
	if linear <= 0 {
		v.Silent = true
		return
	}
	v.Silent = false
	v.Volume = math.Log2(math.Min(linear, 1))
}

// position counts samples passing through to the speaker.
type position struct {
	s beep.Streamer
	n int
}

func (p *position) Stream(samples [][2]float64) (int, bool) {
	n, ok := p.s.Stream(samples)
	p.n += n
	return n, ok
}

func (p *position) Err() error { return p.s.Err() }

func (p *position) set(n int) { p.n = n }

func generateTick(rate beep.SampleRate, freq, duration, volume, decay float64) [][2]float64 {
	n := int(float64(rate) * duration)
	samples := make([][2]float64, n)
	for i := range samples {
		t := float64(i) / float64(rate)
		s := math.Sin(2*math.Pi*freq*t) * volume * math.Exp(-t*decay)
		samples[i] = [2]float64{s, s}
	}
	return samples
}

func sliceStreamer(samples [][2]float64) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := copy(out, samples[pos:])
		pos += n
		return n, true
	})
}
