// Package worker hosts the dictation pipeline behind the line protocol:
// requests in on one pipe, responses and events out on the other. One
// worker process serves exactly one host.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"murmur/audio"
	"murmur/config"
	"murmur/log"
	"murmur/proto"
	"murmur/session"
)

const (
	codeInvalidCommand = "invalid_command"
	codeRequestFailed  = "request_failed"
)

// Options wires the worker to its collaborators. NewTranscriber is
// called at each session start so model profile changes take effect on
// the next session, never an active one.
type Options struct {
	ConfigPath     string
	Capture        audio.CaptureDevice
	NewTranscriber func(cfg config.Config) (session.Transcriber, error)
	Dispatch       session.Dispatcher
	Cues           session.Cues
}

type Worker struct {
	opts Options
	w    *proto.Writer

	mu        sync.Mutex
	cfg       config.Config
	active    *session.Session
	stopCh    chan struct{}
	stopped   bool
	completed int
	wg        sync.WaitGroup
}

// New returns a worker ready to Serve.
func New(opts Options) *Worker {
	return &Worker{opts: opts}
}

// Serve runs the request loop until shutdown, EOF or a broken pipe.
// The initial status event announces the idle pipeline to the host.
func (wk *Worker) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	wk.w = proto.NewWriter(out)

	cfg, err := config.Load(wk.opts.ConfigPath)
	if err != nil {
		log.Warnf("config load: %v", err)
	}
	wk.mu.Lock()
	wk.cfg = cfg
	wk.mu.Unlock()

	wk.emit(proto.EventStatusChanged, map[string]any{"status": session.StateIdle.String()})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		wk.mu.Lock()
		completed := wk.completed
		wk.mu.Unlock()
		log.SessionEnd(completed)
	}()
	defer wk.wg.Wait()
	defer wk.stopSession()

	reader := proto.NewReader(in)
	for {
		req, err := reader.ReadRequest()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// A malformed line is reported, not fatal; the
			// reader already consumed it. Transport errors end
			// the loop.
			wk.emit(proto.EventRuntimeError, map[string]any{
				"message": fmt.Sprintf("invalid request: %v", err),
			})
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				continue
			}
			return err
		}
		if wk.handle(ctx, req) {
			return nil
		}
	}
}

// handle dispatches one request; the return value signals shutdown.
func (wk *Worker) handle(ctx context.Context, req proto.Request) bool {
	switch req.Method {
	case "ping":
		wk.w.Respond(req.ID, map[string]any{"pong": true})

	case "start_listening":
		wk.startListening(ctx, req)

	case "stop_listening":
		stopped := wk.stopSession()
		wk.w.Respond(req.ID, map[string]any{"stopping": stopped})

	case "get_config":
		wk.mu.Lock()
		cfg := wk.cfg
		wk.mu.Unlock()
		wk.w.Respond(req.ID, cfg)

	case "update_config":
		wk.updateConfig(req)

	case "shutdown":
		wk.w.Respond(req.ID, map[string]any{"ok": true})
		return true

	default:
		wk.w.Fail(req.ID, codeInvalidCommand, fmt.Sprintf("unknown method: %s", req.Method))
	}
	return false
}

func (wk *Worker) startListening(ctx context.Context, req proto.Request) {
	wk.mu.Lock()
	if wk.active != nil {
		wk.mu.Unlock()
		wk.w.Fail(req.ID, codeInvalidCommand, "already listening")
		return
	}
	cfg := wk.cfg
	wk.mu.Unlock()

	transcribe, err := wk.opts.NewTranscriber(cfg)
	if err != nil {
		wk.w.Fail(req.ID, codeRequestFailed, fmt.Sprintf("transcriber init: %v", err))
		return
	}

	sess := session.New(session.Deps{
		Capture:    wk.opts.Capture,
		Transcribe: transcribe,
		Dispatch:   wk.opts.Dispatch,
		Emit:       emitterFunc(wk.emit),
		Cues:       wk.opts.Cues,
		Telemetry:  wk.telemetry(cfg),
	}, cfg)

	stopCh := make(chan struct{})
	wk.mu.Lock()
	wk.active = sess
	wk.stopCh = stopCh
	wk.stopped = false
	wk.mu.Unlock()

	wk.w.Respond(req.ID, map[string]any{"started": true, "session_id": sess.ID})

	wk.wg.Add(1)
	go func() {
		defer wk.wg.Done()
		if err := sess.Run(ctx, stopCh); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("session error: %v", err)
		}
		wk.mu.Lock()
		wk.active = nil
		wk.stopCh = nil
		wk.completed++
		wk.mu.Unlock()
	}()
}

func (wk *Worker) updateConfig(req proto.Request) {
	var patch map[string]any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &patch); err != nil {
			wk.w.Fail(req.ID, codeRequestFailed, fmt.Sprintf("patch must be an object: %v", err))
			return
		}
	}

	wk.mu.Lock()
	merged, err := config.Merge(wk.cfg, patch)
	if err == nil {
		err = config.Save(wk.opts.ConfigPath, merged)
	}
	if err == nil {
		wk.cfg = merged
	}
	wk.mu.Unlock()

	if err != nil {
		wk.w.Fail(req.ID, codeRequestFailed, err.Error())
		return
	}
	wk.w.Respond(req.ID, merged)
}

// stopSession fires the active session's stop signal. Idempotent; safe
// with no session running.
func (wk *Worker) stopSession() bool {
	wk.mu.Lock()
	defer wk.mu.Unlock()
	if wk.stopCh == nil {
		return false
	}
	if !wk.stopped {
		close(wk.stopCh)
		wk.stopped = true
	}
	return true
}

func (wk *Worker) emit(event string, data map[string]any) {
	wk.w.Event(event, data)
}

func (wk *Worker) telemetry(cfg config.Config) func(log.TelemetryRecord) {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	path := cfg.Telemetry.LogPath
	return func(rec log.TelemetryRecord) {
		log.Telemetry(path, rec)
	}
}

type emitterFunc func(event string, data map[string]any)

func (f emitterFunc) Emit(event string, data map[string]any) { f(event, data) }
