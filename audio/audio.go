// Package audio abstracts microphone capture behind a small interface
// with PulseAudio and miniaudio backends, plus a fake used by tests and
// the headless harness. It also carries the PCM helpers (RMS, filters)
// the rest of the pipeline shares.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BytesPerFrame = 2 // 16-bit mono
)

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

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

// RMS computes the root-mean-square amplitude of little-endian 16-bit
// mono PCM, in raw sample units (0..32767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func Samples(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

func Bytes(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		clipped := math.Max(-32768, math.Min(32767, s))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(clipped)))
	}
	return out
}
