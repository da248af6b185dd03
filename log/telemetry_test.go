package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLines(t *testing.T, path string) [][]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
}

func TestTelemetryAppendsOneLinePerRecord(t *testing.T) {
	tmp := t.TempDir()
	SetDir(tmp)
	defer Close()

	Telemetry("metrics.jsonl", TelemetryRecord{
		TS: 100, DurationAudioS: 2.5, LatencyS: 0.8,
		Device: "cuda", Model: "small", Confidence: 0.91, Accepted: true,
	})
	Telemetry("metrics.jsonl", TelemetryRecord{
		TS: 101, Device: "cpu", Model: "base", Confidence: 0.2,
	})

	lines := readLines(t, filepath.Join(tmp, "metrics.jsonl"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var rec TelemetryRecord
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.TS != 100 || rec.Device != "cuda" || rec.Confidence != 0.91 || !rec.Accepted {
		t.Errorf("record = %+v", rec)
	}

	// Field names follow the wire metrics event.
	var raw map[string]any
	if err := json.Unmarshal(lines[0], &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"ts", "duration_audio_sec", "latency_sec", "device", "model", "confidence", "accepted"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
}

func TestTelemetryFillsTimestamp(t *testing.T) {
	tmp := t.TempDir()
	SetDir(tmp)
	defer Close()

	Telemetry("metrics.jsonl", TelemetryRecord{Device: "cpu"})

	lines := readLines(t, filepath.Join(tmp, "metrics.jsonl"))
	var rec TelemetryRecord
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.TS == 0 {
		t.Error("ts not filled")
	}
}

func TestTelemetryAbsolutePath(t *testing.T) {
	SetDir(t.TempDir())
	defer Close()

	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	Telemetry(path, TelemetryRecord{TS: 1, Device: "cpu"})

	if lines := readLines(t, path); len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
}

func TestTelemetryEmptyPathIsNoop(t *testing.T) {
	tmp := t.TempDir()
	SetDir(tmp)
	defer Close()

	Telemetry("", TelemetryRecord{TS: 1})

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("sink created files: %v", entries)
	}
}

func TestResolveDirPrecedence(t *testing.T) {
	t.Setenv("MURMUR_LOG_PATH", "/env/logs")

	got, err := ResolveDir("/flag/logs")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/flag/logs" {
		t.Errorf("flag path = %q", got)
	}

	got, err = ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/env/logs" {
		t.Errorf("env path = %q", got)
	}
}
