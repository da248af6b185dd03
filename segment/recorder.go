// Package segment turns a continuous capture stream into bounded
// utterance buffers using amplitude thresholding: a running RMS per
// chunk, an ambient-calibrated silence threshold and a silence streak
// that finalizes the buffer once the speaker trails off.
package segment

import (
	"context"
	"errors"
	"sync"

	"murmur/audio"
	"murmur/config"
)

// ErrTooShort reports an explicit stop before the minimum recording
// duration; the buffer is discarded and no utterance is produced.
var ErrTooShort = errors.New("recording too short")

// Reason records why an utterance was finalized.
type Reason int

const (
	ReasonSilence Reason = iota
	ReasonMaxDuration
	ReasonStopped
)

func (r Reason) String() string {
	switch r {
	case ReasonSilence:
		return "silence"
	case ReasonMaxDuration:
		return "max_duration"
	case ReasonStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Utterance is one finalized recording.
type Utterance struct {
	PCM       []byte
	Duration  float64 // seconds of audio, from consumed sample counts
	Threshold float64 // effective silence threshold after calibration
	Reason    Reason
}

type Recorder struct {
	policy config.Policy
	rate   int

	// OnLevel, when set, receives the RMS of each consumed chunk.
	OnLevel func(rms float64)
}

func NewRecorder(policy config.Policy) *Recorder {
	return &Recorder{policy: policy, rate: audio.SampleRate}
}

// state is everything the capture callback touches. Elapsed and silence
// times are derived from sample counts, not wall clocks, so behavior is
// identical under the fake capture.
type state struct {
	mu sync.Mutex

	buf            []byte
	elapsedSamples int64
	silenceSamples int64
	hasSpeech      bool
	threshold      float64
	ambient        []float64
	finalized      bool
	reason         Reason
}

// Record captures one utterance. It returns when the segmenter
// auto-finalizes (silence streak or max duration), when stop fires
// (force-finalize, or ErrTooShort before the minimum), or when ctx is
// cancelled (buffer discarded).
func (r *Recorder) Record(ctx context.Context, capture audio.CaptureDevice, stop <-chan struct{}) (*Utterance, error) {
	pol := r.policy
	st := &state{threshold: pol.SilenceThreshold}
	autoDone := make(chan struct{})
	var closeOnce sync.Once
	finalize := func(reason Reason) {
		st.reason = reason
		st.finalized = true
		closeOnce.Do(func() { close(autoDone) })
	}

	calibSamples := int64(pol.CalibrationSeconds * float64(r.rate))
	minSamples := int64(pol.MinRecordSeconds * float64(r.rate))
	maxSamples := int64(pol.MaxRecordSeconds * float64(r.rate))
	silenceSamples := int64(pol.SilenceDuration * float64(r.rate))

	capture.SetCallback(func(data []byte, frameCount uint32) {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.finalized {
			return
		}
		st.buf = append(st.buf, data...)
		st.elapsedSamples += int64(frameCount)

		rms := audio.RMS(data)
		if r.OnLevel != nil {
			r.OnLevel(rms)
		}

		// Ambient calibration: raise the threshold above background
		// noise using the opening chunks, never lowering it below the
		// configured fallback.
		if st.elapsedSamples <= calibSamples && !st.hasSpeech {
			if rms < pol.SilenceThreshold*1.2 {
				st.ambient = append(st.ambient, rms)
			}
			if len(st.ambient) > 0 {
				adaptive := audio.Percentile(st.ambient, 0.90) * pol.AdaptiveMultiplier
				if adaptive < pol.MinSilenceThreshold {
					adaptive = pol.MinSilenceThreshold
				}
				if adaptive > pol.SilenceThreshold {
					st.threshold = adaptive
				}
			}
		}

		if rms >= st.threshold {
			st.silenceSamples = 0
			st.hasSpeech = true
		} else {
			st.silenceSamples += int64(frameCount)
		}

		if st.elapsedSamples >= maxSamples {
			finalize(ReasonMaxDuration)
			return
		}
		if st.elapsedSamples >= minSamples && st.silenceSamples >= silenceSamples {
			finalize(ReasonSilence)
		}
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		return nil, err
	}

	var cancelled error
	select {
	case <-autoDone:
	case <-stop:
		st.mu.Lock()
		if st.elapsedSamples < minSamples {
			cancelled = ErrTooShort
		}
		finalize(ReasonStopped)
		st.mu.Unlock()
	case <-ctx.Done():
		st.mu.Lock()
		finalize(ReasonStopped)
		st.mu.Unlock()
		cancelled = ctx.Err()
	}

	capture.Stop()
	capture.ClearCallback()

	if cancelled != nil {
		return nil, cancelled
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return &Utterance{
		PCM:       st.buf,
		Duration:  float64(st.elapsedSamples) / float64(r.rate),
		Threshold: st.threshold,
		Reason:    st.reason,
	}, nil
}
