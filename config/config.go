// Package config holds the on-disk JSON configuration and the read-only
// Policy snapshot the pipeline consumes at session start. Updates arrive
// as raw JSON patches over the control protocol and are deep-merged over
// the current file, so the whole layer stays in JSON end to end.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type STT struct {
	Backend                 string   `json:"backend"`
	Command                 string   `json:"command"`
	ModelCPU                string   `json:"model_cpu"`
	ModelGPU                string   `json:"model_gpu"`
	Device                  string   `json:"device"` // auto, cpu or cuda
	ComputeTypeCPU          string   `json:"compute_type_cpu"`
	ComputeTypeGPU          string   `json:"compute_type_gpu"`
	LanguageMode            string   `json:"language_mode"`
	PrimaryLanguage         string   `json:"primary_language"`
	QualityProfile          string   `json:"quality_profile"`
	MinConfidenceForAccept  float64  `json:"min_confidence_for_accept"`
	AllowLowConfidencePaste bool     `json:"allow_low_confidence_paste"`
	PasteMinConfidenceFloor float64  `json:"paste_min_confidence_floor"`
	MaxRetries              int      `json:"max_retries"`
	RetryOnLowConfidence    bool     `json:"retry_on_low_confidence"`
	TermHints               []string `json:"term_hints"`
}

type Audio struct {
	InputDevice               string  `json:"input_device"`
	InputDeviceID             string  `json:"input_device_id"`
	NoiseSuppression          bool    `json:"noise_suppression"`
	HighpassHz                float64 `json:"highpass_hz"`
	NormalizeTargetDBFS       float64 `json:"normalize_target_dbfs"`
	SilenceCalibrationSeconds float64 `json:"silence_calibration_seconds"`
	SilenceAdaptiveMultiplier float64 `json:"silence_adaptive_multiplier"`
	MinSilenceThreshold       float64 `json:"min_silence_threshold"`
}

type Telemetry struct {
	Enabled bool   `json:"enabled"`
	LogPath string `json:"log_path"`
}

type Config struct {
	Language           string    `json:"language"`
	Hotkey             string    `json:"hotkey"`
	ExitHotkey         string    `json:"exit_hotkey"`
	AutoEnter          bool      `json:"auto_enter"`
	PasteDelay         float64   `json:"paste_delay"`
	PostRecordingDelay float64   `json:"post_recording_delay"`
	BeepOnReady        bool      `json:"beep_on_ready"`
	SilenceThreshold   float64   `json:"silence_threshold"`
	SilenceDuration    float64   `json:"silence_duration"`
	MinRecordSeconds   float64   `json:"min_record_seconds"`
	MaxRecordSeconds   float64   `json:"max_record_seconds"`
	STT                STT       `json:"stt"`
	Audio              Audio     `json:"audio"`
	Telemetry          Telemetry `json:"telemetry"`
}

// Default returns the baseline configuration. Loaded files and patches
// are merged over this, so a partial config file is always valid.
func Default() Config {
	return Config{
		Language:           "en",
		Hotkey:             "ctrl+shift+space",
		ExitHotkey:         "ctrl+shift+q",
		AutoEnter:          false,
		PasteDelay:         0.5,
		PostRecordingDelay: 0.5,
		BeepOnReady:        true,
		SilenceThreshold:   500,
		SilenceDuration:    1.2,
		MinRecordSeconds:   0.3,
		MaxRecordSeconds:   60,
		STT: STT{
			Backend:                 "whisper_exec",
			Command:                 "whisper-cli",
			ModelCPU:                "small",
			ModelGPU:                "large-v3",
			Device:                  "auto",
			ComputeTypeCPU:          "int8",
			ComputeTypeGPU:          "float16",
			LanguageMode:            "primary",
			PrimaryLanguage:         "en",
			QualityProfile:          "balanced",
			MinConfidenceForAccept:  0.35,
			AllowLowConfidencePaste: true,
			PasteMinConfidenceFloor: 0.25,
			MaxRetries:              1,
			RetryOnLowConfidence:    true,
		},
		Audio: Audio{
			NoiseSuppression:          false,
			HighpassHz:                80,
			NormalizeTargetDBFS:       -20.0,
			SilenceCalibrationSeconds: 0.25,
			SilenceAdaptiveMultiplier: 2.5,
			MinSilenceThreshold:       200,
		},
		Telemetry: Telemetry{
			Enabled: true,
			LogPath: "transcribe_metrics.jsonl",
		},
	}
}

// DefaultPath returns the config file location, honoring MURMUR_CONFIG.
func DefaultPath() (string, error) {
	if env := os.Getenv("MURMUR_CONFIG"); env != "" {
		return env, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "murmur", "config.json"), nil
}

// Load reads path and merges it over the defaults. A missing file is not
// an error; it just yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var patch map[string]any
	if err := json.Unmarshal(data, &patch); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return Merge(cfg, patch)
}

// Save writes cfg to path atomically (temp file + rename).
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Merge applies a JSON patch (nested objects merge, everything else
// replaces) over cfg and returns the result.
func Merge(cfg Config, patch map[string]any) (Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg, err
	}
	var base map[string]any
	if err := json.Unmarshal(data, &base); err != nil {
		return cfg, err
	}
	merged, err := json.Marshal(deepMerge(base, patch))
	if err != nil {
		return cfg, err
	}
	out := cfg
	if err := json.Unmarshal(merged, &out); err != nil {
		return cfg, fmt.Errorf("apply config patch: %w", err)
	}
	return out, nil
}

func deepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if pm, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(bm, pm)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Policy is the read-only per-session snapshot the pipeline components
// consume. Built once at session start; config updates only affect the
// next session.
type Policy struct {
	SilenceThreshold   float64
	SilenceDuration    float64
	MinRecordSeconds   float64
	MaxRecordSeconds   float64
	ConfidenceThresh   float64
	ConfidenceFloor    float64
	MaxRetries         int
	AllowLowConfidence bool
	PasteDelay         time.Duration
	PostRecordingDelay time.Duration
	AutoEnter          bool
	BeepOnReady        bool

	// Ambient calibration (segmenter).
	CalibrationSeconds  float64
	AdaptiveMultiplier  float64
	MinSilenceThreshold float64

	// Preprocessing (transcription input).
	HighpassHz          float64
	NormalizeTargetDBFS float64
	NoiseSuppression    bool
}

func (c Config) Policy() Policy {
	return Policy{
		SilenceThreshold:    c.SilenceThreshold,
		SilenceDuration:     c.SilenceDuration,
		MinRecordSeconds:    c.MinRecordSeconds,
		MaxRecordSeconds:    c.MaxRecordSeconds,
		ConfidenceThresh:    c.STT.MinConfidenceForAccept,
		ConfidenceFloor:     c.STT.PasteMinConfidenceFloor,
		MaxRetries:          c.STT.MaxRetries,
		AllowLowConfidence:  c.STT.AllowLowConfidencePaste,
		PasteDelay:          secs(c.PasteDelay),
		PostRecordingDelay:  secs(c.PostRecordingDelay),
		AutoEnter:           c.AutoEnter,
		BeepOnReady:         c.BeepOnReady,
		CalibrationSeconds:  c.Audio.SilenceCalibrationSeconds,
		AdaptiveMultiplier:  c.Audio.SilenceAdaptiveMultiplier,
		MinSilenceThreshold: c.Audio.MinSilenceThreshold,
		HighpassHz:          c.Audio.HighpassHz,
		NormalizeTargetDBFS: c.Audio.NormalizeTargetDBFS,
		NoiseSuppression:    c.Audio.NoiseSuppression,
	}
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// DecodeOptions are the per-profile decode knobs passed to the engine.
type DecodeOptions struct {
	BeamSize     int
	BestOf       int
	Temperatures []float64
	VADFilter    bool
}

var profiles = map[string]DecodeOptions{
	"fast":     {BeamSize: 1, BestOf: 1, Temperatures: []float64{0.0}, VADFilter: true},
	"balanced": {BeamSize: 3, BestOf: 3, Temperatures: []float64{0.0, 0.2}, VADFilter: true},
	"quality":  {BeamSize: 5, BestOf: 5, Temperatures: []float64{0.0, 0.2, 0.4}, VADFilter: true},
}

// Profile returns the decode options for the named quality profile,
// falling back to "balanced" for unknown names.
func Profile(name string) DecodeOptions {
	if opts, ok := profiles[name]; ok {
		return opts
	}
	return profiles["balanced"]
}

// EngineLanguage resolves the language hint handed to the engine: empty
// means auto-detect (multilingual mode).
func (s STT) EngineLanguage() string {
	if s.LanguageMode == "multilingual_auto" {
		return ""
	}
	return s.PrimaryLanguage
}
