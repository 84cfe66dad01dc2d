package audio

const (
	SampleRate    = 44100
	Channels      = 1
	BitsPerSample = 16
)

// DataCallback receives mono PCM16 little-endian data from the capture thread.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultCaptureConfig matches what the analyser expects.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels}
}

type DeviceInfo struct {
	ID      string // opaque platform-specific identifier
	Name    string
	Default bool // the system's default input
}

// DefaultDeviceName is reported by captures opened without a device.
const DefaultDeviceName = "system default"

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Ender is implemented by capture devices whose stream can end on its own:
// a file running out, a device unplugged, the sound server going away. Done
// is not closed by Stop.
type Ender interface {
	Done() <-chan struct{}
}
