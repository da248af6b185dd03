package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// TelemetryRecord mirrors the metrics event for one completed utterance.
type TelemetryRecord struct {
	TS              int64   `json:"ts"`
	DurationAudioS  float64 `json:"duration_audio_sec"`
	LatencyS        float64 `json:"latency_sec"`
	Device          string  `json:"device"`
	Model           string  `json:"model"`
	AvgLogProb      float64 `json:"avg_logprob"`
	NoSpeechProb    float64 `json:"no_speech_prob"`
	Confidence      float64 `json:"confidence"`
	Accepted        bool    `json:"accepted"`
}

var (
	telemetryFile *os.File
	telemetryPath string
)

// Telemetry appends one JSON line per completed utterance to the sink at
// path (relative paths land in the log directory). Best-effort: a sink
// failure never affects the pipeline.
func Telemetry(path string, rec TelemetryRecord) {
	logMu.Lock()
	defer logMu.Unlock()

	if path == "" {
		return
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if telemetryFile == nil || telemetryPath != path {
		if telemetryFile != nil {
			telemetryFile.Close()
			telemetryFile = nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return
		}
		telemetryFile = f
		telemetryPath = path
	}

	if rec.TS == 0 {
		rec.TS = time.Now().Unix()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	telemetryFile.Write(append(line, '\n'))
}

func closeTelemetry() {
	if telemetryFile != nil {
		telemetryFile.Close()
		telemetryFile = nil
		telemetryPath = ""
	}
}
