// Package log writes diagnostics to a per-install log directory and
// exposes the append-only telemetry sink for completed utterances.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolutize(flagPath)
	}

	// Priority 2: MURMUR_LOG_PATH environment variable
	if envPath := os.Getenv("MURMUR_LOG_PATH"); envPath != "" {
		return absolutize(envPath)
	}

	// Priority 3: default OS-specific location
	return getDefaultDir()
}

func absolutize(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, path), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	f, err := os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	diagFile = f

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	closeTelemetry()
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(backend, device, model string) {
	if logReady {
		diagLog.Info().
			Str("backend", backend).
			Str("device", device).
			Str("model", model).
			Msg("session_start")
	}
}

func SessionEnd(utterances int) {
	if logReady {
		diagLog.Info().Int("utterances", utterances).Msg("session_end")
	}
}

// Transcription logs one completed utterance to the diagnostics file.
func Transcription(device, model string, audioS, latencyS, confidence float64, accepted bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", device).
		Str("model", model).
		Float64("audio_s", audioS).
		Float64("latency_s", latencyS).
		Float64("confidence", confidence).
		Bool("accepted", accepted).
		Msg("transcription")
}
