//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
)

// pulseWatchInterval is how often a running record stream is checked for a
// server-side close.
const pulseWatchInterval = 250 * time.Millisecond

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("candlecard"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

// Devices lists pulse sources with the server default first.
func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	defaultID := ""
	if def, err := p.client.DefaultSource(); err == nil {
		defaultID = def.ID()
	}

	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		d := DeviceInfo{ID: s.ID(), Name: s.Name(), Default: s.ID() == defaultID}
		if d.Default {
			devices = append([]DeviceInfo{d}, devices...)
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	c := &pulseCapture{client: p.client, device: device, config: config, ended: make(chan struct{})}
	if device != nil {
		source, err := p.client.SourceByID(device.ID)
		if err != nil {
			return nil, fmt.Errorf("pulse source %q: %w", device.Name, err)
		}
		c.source = source
	}
	return c, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseCapture records mono PCM16 from one source. The record stream is
// created on Start and torn down on Stop; a stream the server closes on its
// own closes Done.
type pulseCapture struct {
	client   *pulse.Client
	device   *DeviceInfo
	source   *pulse.Source
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]

	mu        sync.Mutex
	stream    *pulse.RecordStream
	stop      chan struct{}
	done      chan struct{}
	ended     chan struct{}
	endedOnce sync.Once
}

func (c *pulseCapture) write(buf []int16) (int, error) {
	cb := c.callback.Load()
	if cb == nil || len(buf) == 0 {
		return len(buf), nil
	}
	data := make([]byte, len(buf)*2)
	for i, s := range buf {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	(*cb)(data, uint32(len(buf)))
	return len(buf), nil
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
	}
	if c.source != nil {
		opts = append(opts, pulse.RecordSource(c.source))
	}

	stream, err := c.client.NewRecord(pulse.Int16Writer(c.write), opts...)
	if err != nil {
		return fmt.Errorf("pulse record on %s: %w", c.DeviceName(), err)
	}

	c.stream = stream
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(stream, c.stop, c.done)
	return nil
}

func (c *pulseCapture) run(stream *pulse.RecordStream, stop, done chan struct{}) {
	defer close(done)
	stream.Start()

	ticker := time.NewTicker(pulseWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			stream.Stop()
			stream.Close()
			return
		case <-ticker.C:
			if stream.Closed() || stream.Error() != nil {
				c.endedOnce.Do(func() { close(c.ended) })
				stream.Close()
				<-stop
				return
			}
		}
	}
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stream = nil
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) Done() <-chan struct{} {
	return c.ended
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return DefaultDeviceName
}
