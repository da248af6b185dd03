package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/log"
	"murmur/output"
	"murmur/proto"
	"murmur/session"
	"murmur/transcriber"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	texts []string
}

func (d *fakeDispatcher) Dispatch(text string, _ config.Policy) output.Outcome {
	d.mu.Lock()
	d.texts = append(d.texts, text)
	d.mu.Unlock()
	return output.Outcome{Pasted: true}
}

func speechPCM(seconds float64) []byte {
	n := int(seconds * audio.SampleRate)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / audio.SampleRate
		samples[i] = 4000 * math.Sin(2*math.Pi*200*t)
	}
	return audio.Bytes(samples)
}

type harness struct {
	t          *testing.T
	reqs       *proto.Writer
	stdin      *io.PipeWriter
	responses  chan proto.Message
	events     chan proto.Message
	done       chan error
	dispatcher *fakeDispatcher
	engine     *transcriber.FakeEngine
	configPath string
	nextID     int64
}

func newHarness(t *testing.T, cfg config.Config, engine *transcriber.FakeEngine) *harness {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.json")
	cfg.Telemetry.Enabled = false
	if err := config.Save(configPath, cfg); err != nil {
		t.Fatal(err)
	}

	capture, err := audio.NewFakeContext(speechPCM(0.5)).NewCapture(nil, audio.CaptureConfig{})
	if err != nil {
		t.Fatal(err)
	}

	dispatcher := &fakeDispatcher{}
	wk := New(Options{
		ConfigPath: configPath,
		Capture:    capture,
		NewTranscriber: func(config.Config) (session.Transcriber, error) {
			return transcriber.NewAdapter(engine), nil
		},
		Dispatch: dispatcher,
	})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := &harness{
		t:          t,
		reqs:       proto.NewWriter(inW),
		stdin:      inW,
		responses:  make(chan proto.Message, 64),
		events:     make(chan proto.Message, 64),
		done:       make(chan error, 1),
		dispatcher: dispatcher,
		engine:     engine,
		configPath: configPath,
	}

	go func() {
		h.done <- wk.Serve(context.Background(), inR, outW)
		close(h.done)
		outW.Close()
	}()
	go func() {
		r := proto.NewReader(outR)
		for {
			msg, err := r.ReadMessage()
			if err != nil {
				close(h.responses)
				close(h.events)
				return
			}
			if msg.IsEvent() {
				h.events <- msg
			} else {
				h.responses <- msg
			}
		}
	}()

	t.Cleanup(func() {
		inW.Close()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("worker did not exit on EOF")
		}
	})
	return h
}

func (h *harness) call(method string, params any) proto.Message {
	h.t.Helper()
	h.nextID++
	if err := h.reqs.Request(h.nextID, method, params); err != nil {
		h.t.Fatal(err)
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-h.responses:
			if !ok {
				h.t.Fatal("worker output closed while waiting for response")
			}
			if msg.ID == h.nextID {
				return msg
			}
		case <-deadline:
			h.t.Fatalf("no response for %s (id %d)", method, h.nextID)
		}
	}
}

func (h *harness) waitEvent(name string) proto.Message {
	h.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-h.events:
			if !ok {
				h.t.Fatalf("worker output closed while waiting for %s", name)
			}
			if msg.Event == name {
				return msg
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for event %s", name)
		}
	}
}

func activeSessionConfig() config.Config {
	cfg := config.Default()
	cfg.MinRecordSeconds = 0
	cfg.SilenceDuration = 100
	cfg.MaxRecordSeconds = 600
	cfg.PasteDelay = 0
	cfg.PostRecordingDelay = 0
	return cfg
}

func TestAnnouncesIdleOnStartup(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})
	msg := h.waitEvent(proto.EventStatusChanged)
	if msg.Data["status"] != "idle" {
		t.Errorf("initial status = %v", msg.Data["status"])
	}
}

func TestPing(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})
	msg := h.call("ping", nil)
	if !msg.OK {
		t.Fatalf("ping failed: %+v", msg.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})
	msg := h.call("teleport", nil)
	if msg.OK || msg.Error == nil || msg.Error.Code != "invalid_command" {
		t.Errorf("response = %+v", msg)
	}
}

func TestGetConfigIsIdempotent(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})

	first := h.call("get_config", nil)
	second := h.call("get_config", nil)
	if !first.OK || !second.OK {
		t.Fatal("get_config failed")
	}
	if string(first.Result) != string(second.Result) {
		t.Errorf("get_config changed state:\n%s\n%s", first.Result, second.Result)
	}
}

func TestUpdateConfigMergesAndPersists(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})

	msg := h.call("update_config", map[string]any{
		"silence_threshold": 700,
		"stt":               map[string]any{"max_retries": 2},
	})
	if !msg.OK {
		t.Fatalf("update_config failed: %+v", msg.Error)
	}

	got := h.call("get_config", nil)
	var cfg config.Config
	if err := unmarshal(got.Result, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.SilenceThreshold != 700 {
		t.Errorf("silence_threshold = %v", cfg.SilenceThreshold)
	}
	if cfg.STT.MaxRetries != 2 {
		t.Errorf("max_retries = %d", cfg.STT.MaxRetries)
	}
	if cfg.STT.Command != config.Default().STT.Command {
		t.Errorf("untouched key lost: %q", cfg.STT.Command)
	}

	// The merge also lands on disk.
	onDisk, err := config.Load(h.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.SilenceThreshold != 700 {
		t.Errorf("on-disk silence_threshold = %v", onDisk.SilenceThreshold)
	}
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	engine := &transcriber.FakeEngine{Script: []transcriber.Raw{{Text: "dictated text"}}}
	h := newHarness(t, activeSessionConfig(), engine)

	first := h.call("start_listening", nil)
	if !first.OK {
		t.Fatalf("start_listening failed: %+v", first.Error)
	}

	second := h.call("start_listening", nil)
	if second.OK {
		t.Fatal("second start_listening accepted while active")
	}
	if second.Error.Code != "invalid_command" {
		t.Errorf("error code = %q", second.Error.Code)
	}

	stop := h.call("stop_listening", nil)
	if !stop.OK {
		t.Fatalf("stop_listening failed: %+v", stop.Error)
	}

	ready := h.waitEvent(proto.EventTranscriptReady)
	if ready.Data["text"] != "dictated text" {
		t.Errorf("transcript = %v", ready.Data)
	}
}

func TestStartAgainAfterSessionEnds(t *testing.T) {
	engine := &transcriber.FakeEngine{Script: []transcriber.Raw{{Text: "one"}, {Text: "two"}}}
	h := newHarness(t, activeSessionConfig(), engine)

	h.call("start_listening", nil)
	h.call("stop_listening", nil)
	h.waitEvent(proto.EventTranscriptReady)

	// The worker is idle again; a new session must be accepted. The
	// previous session's teardown races the restart, so poll.
	deadline := time.After(3 * time.Second)
	for {
		msg := h.call("start_listening", nil)
		if msg.OK {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("start_listening still rejected: %+v", msg.Error)
		case <-time.After(20 * time.Millisecond):
		}
	}
	h.call("stop_listening", nil)
	h.waitEvent(proto.EventTranscriptReady)
}

func TestStopWithoutSession(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})
	msg := h.call("stop_listening", nil)
	if !msg.OK {
		t.Fatalf("stop_listening errored: %+v", msg.Error)
	}
}

func TestMalformedLineEmitsRuntimeError(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})

	if _, err := io.WriteString(h.stdin, "this is not json\n"); err != nil {
		t.Fatal(err)
	}
	h.waitEvent(proto.EventRuntimeError)

	// The loop survives the bad line.
	if msg := h.call("ping", nil); !msg.OK {
		t.Errorf("ping after malformed line failed: %+v", msg.Error)
	}
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, config.Default(), &transcriber.FakeEngine{})
	msg := h.call("shutdown", nil)
	if !msg.OK {
		t.Fatalf("shutdown failed: %+v", msg.Error)
	}
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not exit after shutdown")
	}
}

func TestLogsSessionEndOnExit(t *testing.T) {
	oldDir := log.Dir()
	log.SetDir(t.TempDir())
	if err := log.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		log.Close()
		log.SetDir(oldDir)
	})

	engine := &transcriber.FakeEngine{Script: []transcriber.Raw{{Text: "counted"}}}
	h := newHarness(t, activeSessionConfig(), engine)

	h.call("start_listening", nil)
	h.call("stop_listening", nil)
	h.waitEvent(proto.EventTranscriptReady)
	h.call("shutdown", nil)
	select {
	case <-h.done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not exit after shutdown")
	}

	data, err := os.ReadFile(filepath.Join(log.Dir(), "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "session_end") {
		t.Errorf("diagnostics missing session_end marker:\n%s", data)
	}
	if !strings.Contains(string(data), "utterances=1") {
		t.Errorf("utterance count not recorded:\n%s", data)
	}
}

func unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty result")
	}
	return json.Unmarshal(data, v)
}
