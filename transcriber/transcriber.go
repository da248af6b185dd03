// Package transcriber converts finalized utterance buffers to text. The
// model runtime sits behind the narrow Engine interface; the Adapter adds
// device fallback and confidence scoring on top of it.
package transcriber

import (
	"context"
	"errors"
	"math"
)

// ErrTranscriptionFailed reports that every candidate device failed for
// an utterance. Fatal for the utterance, not for the session.
var ErrTranscriptionFailed = errors.New("transcription failed on all devices")

const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Request is one inference call handed to an Engine.
type Request struct {
	PCM        []byte
	SampleRate int
	Channels   int

	Model       string
	Device      string
	ComputeType string
	Language    string // empty means auto-detect
	Prompt      string

	BeamSize     int
	BestOf       int
	Temperatures []float64
	VADFilter    bool
}

// Raw is what the model runtime reports before scoring.
type Raw struct {
	Text         string
	AvgLogProb   float64
	NoSpeechProb float64
}

// Engine is the pluggable speech-to-text capability. Implementations
// must be safe for sequential reuse; the pipeline never runs two
// inferences concurrently.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Raw, error)
}

// Result is the adapter's output for one utterance.
type Result struct {
	Text         string
	Confidence   float64
	AvgLogProb   float64
	NoSpeechProb float64
	DeviceUsed   string
	Model        string
	LatencySec   float64
}

// Score maps the model's quality signals to a scalar confidence in
// [0,1]:
//
//	0.6*exp(min(0, avg_logprob)) + 0.4*(1 - clamp01(no_speech_prob))
//
// Monotonic in avg_logprob and anti-monotonic in no_speech_prob, which
// is all the confidence gate relies on.
func Score(avgLogProb, noSpeechProb float64) float64 {
	lpConf := math.Exp(math.Min(0.0, avgLogProb))
	speechConf := 1.0 - math.Max(0.0, math.Min(1.0, noSpeechProb))
	score := 0.6*lpConf + 0.4*speechConf
	return math.Max(0.0, math.Min(1.0, score))
}
