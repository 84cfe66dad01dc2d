package blow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"candlecard/analyser"
	"candlecard/audio"

	"github.com/rs/zerolog"
)

const micFrameBuffer = 4

// MicSource captures from an audio device and feeds analyser frames to the
// detector. Opening and starting the capture device is what counts as
// acquiring microphone permission.
type MicSource struct {
	actx   audio.Context
	device *audio.DeviceInfo
	log    *zerolog.Logger

	mu      sync.Mutex
	capture audio.CaptureDevice
	run     *micRun
}

type micRun struct {
	mu      sync.Mutex
	frames  chan []byte
	closed  bool
	dropped uint64
	stop    chan struct{}
}

func (r *micRun) send(bins []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.frames <- bins:
	default:
		r.dropped++
	}
}

func (r *micRun) close() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.frames)
	}
	return r.dropped
}

func NewMicSource(actx audio.Context, device *audio.DeviceInfo, logger *zerolog.Logger) *MicSource {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &MicSource{actx: actx, device: device, log: logger}
}

func (m *MicSource) Start(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != nil {
		return nil, errors.New("microphone already open")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := m.actx.NewCapture(m.device, audio.DefaultCaptureConfig())
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	run := &micRun{
		frames: make(chan []byte, micFrameBuffer),
		stop:   make(chan struct{}),
	}
	an := analyser.New(run.send)
	capture.SetCallback(func(data []byte, _ uint32) {
		an.Write(data)
	})
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, fmt.Errorf("start capture on %s: %w", capture.DeviceName(), err)
	}

	if e, ok := capture.(audio.Ender); ok {
		go func() {
			select {
			case <-e.Done():
				m.log.Debug().Msg("capture stream ended")
				run.close()
			case <-run.stop:
			}
		}()
	}

	m.capture = capture
	m.run = run
	m.log.Info().Str("device", capture.DeviceName()).Msg("microphone open")
	return run.frames, nil
}

// Stop closes the capture device. Safe to call when not started.
func (m *MicSource) Stop() {
	m.mu.Lock()
	capture, run := m.capture, m.run
	m.capture, m.run = nil, nil
	m.mu.Unlock()

	if run == nil {
		return
	}
	close(run.stop)
	capture.ClearCallback()
	capture.Stop()
	capture.Close()
	if dropped := run.close(); dropped > 0 {
		m.log.Debug().Uint64("dropped", dropped).Msg("frames dropped")
	}
	m.log.Info().Msg("microphone closed")
}

// DeviceName reports the open device, or the configured one when closed.
func (m *MicSource) DeviceName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capture != nil {
		return m.capture.DeviceName()
	}
	if m.device != nil {
		return m.device.Name
	}
	return audio.DefaultDeviceName
}
