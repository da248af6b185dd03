package audio

import (
	"sync"
	"time"
)

const fakeChunkFrames = 1024

// FakeContext replays a fixed PCM buffer through the CaptureDevice
// interface: the buffer first, then silence until stopped. Frame pacing
// is immediate, so time-based logic driven by sample counts stays
// deterministic in tests.
type FakeContext struct {
	pcm []byte
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm}, nil
}

type FakeCapture struct {
	pcm []byte

	mu     sync.Mutex
	cb     DataCallback
	stopCh chan struct{}
	done   chan struct{}
}

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

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.done = make(chan struct{})

	chunkBytes := fakeChunkFrames * BytesPerFrame
	go func() {
		defer close(f.done)
		pos := 0
		silence := make([]byte, chunkBytes)
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}
			cb := f.callback()
			if cb == nil {
				time.Sleep(time.Millisecond)
				continue
			}
			if pos < len(f.pcm) {
				end := min(pos+chunkBytes, len(f.pcm))
				chunk := make([]byte, end-pos)
				copy(chunk, f.pcm[pos:end])
				cb(chunk, uint32(len(chunk)/BytesPerFrame))
				pos = end
			} else {
				cb(silence, fakeChunkFrames)
				// Back off a little once live audio is exhausted so a
				// recorder waiting on an external stop is not flooded.
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.done
}

func (f *FakeCapture) Close() {}
