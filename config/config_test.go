package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}

func TestLoadPartialFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"silence_threshold": 650, "stt": {"device": "cpu"}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SilenceThreshold != 650 {
		t.Errorf("silence_threshold = %v", cfg.SilenceThreshold)
	}
	if cfg.STT.Device != "cpu" {
		t.Errorf("stt.device = %q", cfg.STT.Device)
	}
	// Untouched nested keys keep their defaults.
	if cfg.STT.ModelGPU != Default().STT.ModelGPU {
		t.Errorf("stt.model_gpu lost default: %q", cfg.STT.ModelGPU)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Default()
	cfg.Language = "de"
	cfg.STT.MaxRetries = 3

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestMergeNestedPatch(t *testing.T) {
	cfg := Default()
	merged, err := Merge(cfg, map[string]any{
		"auto_enter": true,
		"stt":        map[string]any{"min_confidence_for_accept": 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !merged.AutoEnter {
		t.Error("auto_enter not applied")
	}
	if merged.STT.MinConfidenceForAccept != 0.5 {
		t.Errorf("min_confidence_for_accept = %v", merged.STT.MinConfidenceForAccept)
	}
	if merged.STT.Command != cfg.STT.Command {
		t.Errorf("sibling key clobbered: %q", merged.STT.Command)
	}
}

func TestMergeEmptyPatchIsIdentity(t *testing.T) {
	cfg := Default()
	cfg.STT.TermHints = []string{"kubernetes", "pulseaudio"}
	merged, err := Merge(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(merged, cfg) {
		t.Errorf("identity merge changed config:\n got %+v\nwant %+v", merged, cfg)
	}
}

func TestPolicyConversions(t *testing.T) {
	cfg := Default()
	cfg.PasteDelay = 0.25
	cfg.PostRecordingDelay = 1.5

	pol := cfg.Policy()
	if pol.PasteDelay != 250*time.Millisecond {
		t.Errorf("PasteDelay = %v", pol.PasteDelay)
	}
	if pol.PostRecordingDelay != 1500*time.Millisecond {
		t.Errorf("PostRecordingDelay = %v", pol.PostRecordingDelay)
	}
	if pol.ConfidenceThresh != cfg.STT.MinConfidenceForAccept {
		t.Errorf("ConfidenceThresh = %v", pol.ConfidenceThresh)
	}
}

func TestProfileFallsBackToBalanced(t *testing.T) {
	if got := Profile("warp-speed"); !reflect.DeepEqual(got, Profile("balanced")) {
		t.Errorf("unknown profile = %+v", got)
	}
	if got := Profile("fast"); got.BeamSize != 1 {
		t.Errorf("fast beam size = %d", got.BeamSize)
	}
}

func TestEngineLanguage(t *testing.T) {
	stt := Default().STT
	if lang := stt.EngineLanguage(); lang != "en" {
		t.Errorf("primary mode language = %q", lang)
	}
	stt.LanguageMode = "multilingual_auto"
	if lang := stt.EngineLanguage(); lang != "" {
		t.Errorf("multilingual mode language = %q, want empty", lang)
	}
}

func TestDefaultPathHonorsEnv(t *testing.T) {
	t.Setenv("MURMUR_CONFIG", "/tmp/custom.json")
	path, err := DefaultPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != "/tmp/custom.json" {
		t.Errorf("path = %q", path)
	}
}
