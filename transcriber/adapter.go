package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/log"
)

// Adapter drives an Engine with device fallback: the accelerated device
// is tried first and a failure there is retried once on the CPU without
// surfacing to the caller. A failed accelerated device stays disabled
// for the adapter's lifetime.
type Adapter struct {
	engine Engine
	now    func() time.Time

	mu           sync.Mutex
	cudaDisabled bool
}

func NewAdapter(engine Engine) *Adapter {
	return &Adapter{engine: engine, now: time.Now}
}

func (a *Adapter) Engine() Engine { return a.engine }

// Transcribe runs one utterance through the engine and scores the
// result. The returned Result is partial: accept/paste decisions belong
// to the confidence gate and dispatcher.
func (a *Adapter) Transcribe(ctx context.Context, pcm []byte, stt config.STT) (Result, error) {
	opts := config.Profile(stt.QualityProfile)
	start := a.now()

	var firstErr error
	for _, device := range a.candidates(stt) {
		raw, err := a.engine.Transcribe(ctx, a.request(pcm, stt, opts, device))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if device == DeviceCUDA {
				a.disableCUDA()
				log.Warnf("accelerated device failed, falling back to cpu: %v", err)
			}
			continue
		}
		raw = a.refine(ctx, pcm, stt, opts, device, raw)
		return Result{
			Text:         strings.TrimSpace(raw.Text),
			Confidence:   Score(raw.AvgLogProb, raw.NoSpeechProb),
			AvgLogProb:   raw.AvgLogProb,
			NoSpeechProb: raw.NoSpeechProb,
			DeviceUsed:   device,
			Model:        modelFor(stt, device),
			LatencySec:   a.now().Sub(start).Seconds(),
		}, nil
	}
	return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, firstErr)
}

// refine recovers a bad decode without re-recording: when the first pass
// comes back empty, below the accept threshold, or fragmented, it runs
// one more pass with escalated decode settings on the same device and
// keeps whichever pass scores better. A failed second pass keeps the
// first; refine never turns a usable decode into an error.
func (a *Adapter) refine(ctx context.Context, pcm []byte, stt config.STT, opts config.DecodeOptions, device string, first Raw) Raw {
	if !stt.RetryOnLowConfidence {
		return first
	}
	text := strings.TrimSpace(first.Text)
	confidence := Score(first.AvgLogProb, first.NoSpeechProb)
	if text != "" && confidence >= stt.MinConfidenceForAccept && !looksFragmented(text) {
		return first
	}

	second, err := a.engine.Transcribe(ctx, a.request(pcm, stt, escalated(opts), device))
	if err != nil {
		log.Warnf("escalated decode failed, keeping first pass: %v", err)
		return first
	}
	secondText := strings.TrimSpace(second.Text)
	secondConfidence := Score(second.AvgLogProb, second.NoSpeechProb)
	if decodeQuality(secondText, secondConfidence) >= decodeQuality(text, confidence) ||
		(text == "" && secondText != "") {
		return second
	}
	return first
}

func (a *Adapter) candidates(stt config.STT) []string {
	switch stt.Device {
	case DeviceCPU:
		return []string{DeviceCPU}
	case DeviceCUDA:
		return []string{DeviceCUDA, DeviceCPU}
	}
	a.mu.Lock()
	disabled := a.cudaDisabled
	a.mu.Unlock()
	if disabled {
		return []string{DeviceCPU}
	}
	return []string{DeviceCUDA, DeviceCPU}
}

func (a *Adapter) disableCUDA() {
	a.mu.Lock()
	a.cudaDisabled = true
	a.mu.Unlock()
}

func (a *Adapter) request(pcm []byte, stt config.STT, opts config.DecodeOptions, device string) Request {
	return Request{
		PCM:          pcm,
		SampleRate:   audio.SampleRate,
		Channels:     audio.Channels,
		Model:        modelFor(stt, device),
		Device:       device,
		ComputeType:  computeFor(stt, device),
		Language:     stt.EngineLanguage(),
		Prompt:       hintPrompt(stt.TermHints),
		BeamSize:     opts.BeamSize,
		BestOf:       opts.BestOf,
		Temperatures: opts.Temperatures,
		VADFilter:    opts.VADFilter,
	}
}

func modelFor(stt config.STT, device string) string {
	if device == DeviceCUDA {
		return stt.ModelGPU
	}
	return stt.ModelCPU
}

func computeFor(stt config.STT, device string) string {
	if device == DeviceCUDA {
		return stt.ComputeTypeGPU
	}
	return stt.ComputeTypeCPU
}

// hintPrompt biases decoding toward domain terms the user dictates
// often. At most twelve hints to keep the prompt short.
func hintPrompt(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	if len(hints) > 12 {
		hints = hints[:12]
	}
	return "Keep technical terms, brand and product names as spoken. Term hints: " + strings.Join(hints, ", ") + "."
}
