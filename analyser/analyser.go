// Package analyser turns captured PCM into byte frequency magnitudes with the
// same scaling a browser AnalyserNode applies in getByteFrequencyData.
package analyser

import (
	"encoding/binary"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	FFTSize    = 2048
	BinCount   = FFTSize / 2
	BufferSize = 2048 // samples per frame; sets the sampling cadence

	SmoothingTimeConstant = 0.8
	MinDecibels           = -100.0
	MaxDecibels           = -30.0
)

// FrameFunc receives one frame of BinCount magnitudes in 0..255.
type FrameFunc func(bins []byte)

type Analyser struct {
	fft     *fourier.FFT
	onFrame FrameFunc

	mu       sync.Mutex
	carry    []byte    // odd trailing byte from the previous write
	block    []float64 // samples waiting for a full buffer
	history  []float64 // last FFTSize samples
	smoothed []float64
	windowed []float64
	coeffs   []complex128
	frames   uint64
}

func New(onFrame FrameFunc) *Analyser {
	return &Analyser{
		fft:      fourier.NewFFT(FFTSize),
		onFrame:  onFrame,
		block:    make([]float64, 0, BufferSize),
		history:  make([]float64, FFTSize),
		smoothed: make([]float64, BinCount),
		windowed: make([]float64, FFTSize),
	}
}

// Write accepts mono PCM16 little-endian data in any chunk size. Every time
// BufferSize samples have accumulated a frame is computed and delivered.
func (a *Analyser) Write(pcm []byte) {
	a.mu.Lock()
	if len(a.carry) > 0 {
		pcm = append(a.carry, pcm...)
		a.carry = nil
	}

	var out [][]byte
	i := 0
	for ; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		a.block = append(a.block, float64(s)/32768.0)
		if len(a.block) == BufferSize {
			out = append(out, a.computeLocked())
			a.block = a.block[:0]
		}
	}
	if i < len(pcm) {
		a.carry = []byte{pcm[i]}
	}
	cb := a.onFrame
	a.mu.Unlock()

	if cb == nil {
		return
	}
	for _, bins := range out {
		cb(bins)
	}
}

// Frames reports how many frames have been computed.
func (a *Analyser) Frames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// Reset drops buffered samples and the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.carry = nil
	a.block = a.block[:0]
	clear(a.history)
	clear(a.smoothed)
}

func (a *Analyser) computeLocked() []byte {
	copy(a.history, a.history[len(a.block):])
	copy(a.history[FFTSize-len(a.block):], a.block)

	copy(a.windowed, a.history)
	window.Blackman(a.windowed)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	bins := make([]byte, BinCount)
	for k := 0; k < BinCount; k++ {
		mag := cmplx.Abs(a.coeffs[k]) / FFTSize
		a.smoothed[k] = SmoothingTimeConstant*a.smoothed[k] + (1-SmoothingTimeConstant)*mag
		bins[k] = toByte(a.smoothed[k])
	}
	a.frames++
	return bins
}

func toByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := math.Floor(255 / (MaxDecibels - MinDecibels) * (db - MinDecibels))
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return byte(v)
}

// Mean is the arithmetic mean of all bins, 0 for an empty frame.
func Mean(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins))
}
