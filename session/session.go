// Package session orchestrates one recording-to-output cycle: recorder,
// transcription adapter, confidence gate and output dispatcher, with
// lifecycle events emitted at every transition.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"murmur/audio"
	"murmur/config"
	"murmur/gate"
	"murmur/log"
	"murmur/output"
	"murmur/proto"
	"murmur/segment"
	"murmur/transcriber"
)

// State is the session lifecycle state.
//
//	idle → recording → processing → (retrying → recording)* → idle
//	recording → idle on cancellation before the minimum duration
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// TranscriptResult is the immutable outcome of one finalized utterance.
type TranscriptResult struct {
	Text             string
	Confidence       float64
	AvgLogProb       float64
	NoSpeechProb     float64
	DeviceUsed       string
	Model            string
	LatencySec       float64
	DurationAudioSec float64
	Accepted         bool
	Pasted           bool
	Warning          string
}

// Emitter receives lifecycle and telemetry events, in emission order.
type Emitter interface {
	Emit(event string, data map[string]any)
}

// Cues plays the audible feedback (ready / done / error). Optional.
type Cues interface {
	Ready()
	Done()
	Error()
}

// Transcriber is the adapter seam (satisfied by *transcriber.Adapter).
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, stt config.STT) (transcriber.Result, error)
}

// Dispatcher is the output seam (satisfied by *output.Dispatcher).
type Dispatcher interface {
	Dispatch(text string, pol config.Policy) output.Outcome
}

// Deps wires the session to its collaborators. Capture, Transcribe,
// Dispatch and Emit are required; Cues and Telemetry may be nil.
type Deps struct {
	Capture    audio.CaptureDevice
	Transcribe Transcriber
	Dispatch   Dispatcher
	Emit       Emitter
	Cues       Cues
	Telemetry  func(rec log.TelemetryRecord)
}

// Session runs one dictation cycle. Exactly one active session exists
// per worker at a time; the worker enforces that.
type Session struct {
	deps  Deps
	cfg   config.Config
	pol   config.Policy
	state State

	// ID is the trace id attached to every event of this session.
	ID string
}

func New(deps Deps, cfg config.Config) *Session {
	return &Session{
		deps:  deps,
		cfg:   cfg,
		pol:   cfg.Policy(),
		state: StateIdle,
		ID:    xid.New().String(),
	}
}

func (s *Session) State() State { return s.state }

func (s *Session) setState(state State) {
	s.state = state
	s.deps.Emit.Emit(proto.EventStatusChanged, map[string]any{
		"status":   state.String(),
		"trace_id": s.ID,
	})
}

// Run executes the session to completion: at most 1+MaxRetries
// record/transcribe attempts, then accept/reject and return to idle.
// stop force-finalizes the active recording (or cancels it before the
// minimum duration); ctx cancellation discards everything.
//
// Failures local to the utterance are reported through events and a nil
// error; only context cancellation propagates.
func (s *Session) Run(ctx context.Context, stop <-chan struct{}) error {
	defer s.setState(StateIdle)

	recorder := segment.NewRecorder(s.pol)
	attempts := 0

	for {
		s.setState(StateRecording)
		if s.pol.BeepOnReady && attempts == 0 {
			s.cueReady()
		}

		utt, err := recorder.Record(ctx, s.deps.Capture, stop)
		switch {
		case errors.Is(err, segment.ErrTooShort):
			// Pre-minimum cancellation: no TranscriptResult at all.
			s.emitError("recording too short")
			s.cueError()
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			s.emitError(fmt.Sprintf("recording failed: %v", err))
			s.cueError()
			return nil
		}

		s.setState(StateProcessing)

		pcm := audio.Preprocess(utt.PCM, audio.SampleRate, audio.PreprocessOptions{
			HighpassHz:          s.pol.HighpassHz,
			NormalizeTargetDBFS: s.pol.NormalizeTargetDBFS,
			NoiseSuppression:    s.pol.NoiseSuppression,
		})

		res, err := s.deps.Transcribe.Transcribe(ctx, pcm, s.cfg.STT)
		if err != nil {
			// Both devices failed: abort this session, not the worker.
			s.emitError(err.Error())
			s.cueError()
			return nil
		}
		if res.Text == "" {
			// A confident decode of nothing is silence, not a
			// transcript; it never reaches the gate or the clipboard.
			s.emitError("no speech detected")
			s.cueError()
			return nil
		}

		// An explicit stop already consumed the stop signal, so a
		// re-record could never be stopped again; spend the retry
		// budget and let the gate decide on what we have.
		attemptsForGate := attempts
		if utt.Reason == segment.ReasonStopped {
			attemptsForGate = s.pol.MaxRetries
		}
		decision := gate.Evaluate(
			res.Confidence,
			s.pol.ConfidenceFloor,
			s.pol.ConfidenceThresh,
			attemptsForGate,
			s.pol.MaxRetries,
			s.pol.AllowLowConfidence,
		)
		if decision.Retry {
			attempts++
			log.Info(fmt.Sprintf("low confidence %.2f, retrying (attempt %d)", res.Confidence, attempts))
			s.setState(StateRetrying)
			continue
		}

		s.finish(utt, res, decision)
		return nil
	}
}

// finish dispatches an accepted result, then emits transcript_ready and
// metrics before the deferred return to idle.
func (s *Session) finish(utt *segment.Utterance, res transcriber.Result, decision gate.Decision) {
	result := TranscriptResult{
		Text:             res.Text,
		Confidence:       res.Confidence,
		AvgLogProb:       res.AvgLogProb,
		NoSpeechProb:     res.NoSpeechProb,
		DeviceUsed:       res.DeviceUsed,
		Model:            res.Model,
		LatencySec:       res.LatencySec,
		DurationAudioSec: utt.Duration,
		Accepted:         decision.Accept,
		Warning:          decision.Warning,
	}

	if decision.Accept {
		outcome := s.deps.Dispatch.Dispatch(result.Text, s.pol)
		result.Pasted = outcome.Pasted
		if outcome.Warning != "" {
			if result.Warning != "" {
				result.Warning += "; " + outcome.Warning
			} else {
				result.Warning = outcome.Warning
			}
		}
	}

	ready := map[string]any{
		"text":       result.Text,
		"confidence": result.Confidence,
		"accepted":   result.Accepted,
		"pasted":     result.Pasted,
		"trace_id":   s.ID,
	}
	if result.Warning != "" {
		ready["warning"] = result.Warning
	}
	s.deps.Emit.Emit(proto.EventTranscriptReady, ready)

	s.deps.Emit.Emit(proto.EventMetrics, map[string]any{
		"text":               result.Text,
		"confidence":         result.Confidence,
		"avg_logprob":        result.AvgLogProb,
		"no_speech_prob":     result.NoSpeechProb,
		"device_used":        result.DeviceUsed,
		"model":              result.Model,
		"latency_sec":        result.LatencySec,
		"duration_audio_sec": result.DurationAudioSec,
		"accepted":           result.Accepted,
		"pasted":             result.Pasted,
		"trace_id":           s.ID,
	})

	if s.deps.Telemetry != nil {
		s.deps.Telemetry(log.TelemetryRecord{
			DurationAudioS: result.DurationAudioSec,
			LatencyS:       result.LatencySec,
			Device:         result.DeviceUsed,
			Model:          result.Model,
			AvgLogProb:     result.AvgLogProb,
			NoSpeechProb:   result.NoSpeechProb,
			Confidence:     result.Confidence,
			Accepted:       result.Accepted,
		})
	}
	log.Transcription(result.DeviceUsed, result.Model, result.DurationAudioSec, result.LatencySec, result.Confidence, result.Accepted)

	if result.Accepted && result.Pasted {
		s.cueDone()
	} else {
		s.cueError()
	}
}

func (s *Session) emitError(message string) {
	s.deps.Emit.Emit(proto.EventRuntimeError, map[string]any{
		"message":  message,
		"trace_id": s.ID,
	})
}

func (s *Session) cueReady() {
	if s.deps.Cues != nil {
		s.deps.Cues.Ready()
	}
}

func (s *Session) cueDone() {
	if s.deps.Cues != nil {
		s.deps.Cues.Done()
	}
}

func (s *Session) cueError() {
	if s.deps.Cues != nil {
		s.deps.Cues.Error()
	}
}
