package audio

import (
	"bytes"
	"encoding/binary"
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
	"github.com/gopxl/beep/v2/wav"
	"github.com/mewkiz/flac"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

type FakeOptions struct {
	// Realtime paces chunks at the capture rate instead of feeding the whole
	// file at once.
	Realtime bool
	// EndOnEOF ends the stream when the file runs out. Otherwise silence is
	// fed until Stop.
	EndOnEOF bool
}

// FakeContext replays a WAV or FLAC file as if it came from a microphone.
type FakeContext struct {
	pcm  []byte
	opts FakeOptions
}

func NewFakeContext(path string, opts FakeOptions) (*FakeContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pcm []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		pcm, err = decodeFLAC(data)
	default:
		pcm, err = decodeWAV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &FakeContext{pcm: pcm, opts: opts}, nil
}

// NewFakeContextPCM wraps raw mono PCM16 at SampleRate.
func NewFakeContextPCM(pcm []byte, opts FakeOptions) *FakeContext {
	return &FakeContext{pcm: pcm, opts: opts}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{
		pcm:       f.pcm,
		opts:      f.opts,
		audioDone: make(chan struct{}),
		ended:     make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm       []byte
	opts      FakeOptions
	audioDone chan struct{}
	ended     chan struct{}
	endOnce   sync.Once

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once every sample of the file has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

// Done is closed when the stream ends on its own (EndOnEOF).
func (f *FakeCapture) Done() <-chan struct{} { return f.ended }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) finish() {
	close(f.audioDone)
	if f.opts.EndOnEOF {
		f.endOnce.Do(func() { close(f.ended) })
	}
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.stopCh != nil {
		f.mu.Unlock()
		return errors.New("fake capture already started")
	}
	stopCh := make(chan struct{})
	feedDone := make(chan struct{})
	f.stopCh = stopCh
	f.feedDone = feedDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Duration(fakeFrameSize) * time.Second / SampleRate
	if !f.opts.Realtime {
		interval = time.Millisecond
		if cb := f.callback(); cb != nil {
			for pos := 0; pos < len(f.pcm); {
				pos = f.feedChunk(cb, pos, chunkBytes)
			}
		}
		f.finish()
	}

	go func() {
		defer close(feedDone)
		pos := 0
		if !f.opts.Realtime {
			pos = len(f.pcm)
		}
		finished := !f.opts.Realtime
		silence := make([]byte, chunkBytes)

		for {
			select {
			case <-stopCh:
				return
			default:
			}

			cb := f.callback()
			switch {
			case cb == nil:
			case pos < len(f.pcm):
				pos = f.feedChunk(cb, pos, chunkBytes)
			default:
				if !finished {
					finished = true
					f.finish()
				}
				if f.opts.EndOnEOF {
					return
				}
				cb(silence, fakeFrameSize)
			}

			if finished && f.opts.EndOnEOF {
				return
			}
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.stopCh, f.feedDone = nil, nil
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-feedDone
}

func (f *FakeCapture) Close() { f.Stop() }

func decodeWAV(data []byte) ([]byte, error) {
	s, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	defer s.Close()

	var stream beep.Streamer = s
	if format.SampleRate != SampleRate {
		stream = beep.Resample(4, format.SampleRate, SampleRate, s)
	}

	var pcm []byte
	buf := make([][2]float64, 512)
	for {
		n, ok := stream.Stream(buf)
		for _, frame := range buf[:n] {
			pcm = appendSample(pcm, frame[0])
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	return pcm, nil
}

func decodeFLAC(data []byte) ([]byte, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode flac: %w", err)
	}
	defer stream.Close()

	if stream.Info.SampleRate != SampleRate {
		return nil, fmt.Errorf("flac sample rate %d, want %d", stream.Info.SampleRate, SampleRate)
	}
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))

	var pcm []byte
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode flac: %w", err)
		}
		// First channel only; the analyser works on mono input.
		for _, s := range frame.Subframes[0].Samples {
			pcm = appendSample(pcm, float64(s)/scale)
		}
	}
	return pcm, nil
}

func appendSample(pcm []byte, v float64) []byte {
	v = math.Max(-1, math.Min(1, v))
	return binary.LittleEndian.AppendUint16(pcm, uint16(int16(v*32767)))
}
