package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWeightsConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadWeightsConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg != DefaultWeightsConfig() {
		t.Errorf("expected defaults, got: %+v", cfg)
	}
}

func TestLoadWeightsConfig_PartialManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	manifest := "base_dir: /models/sd15\nesrgan_x2: /models/esrgan/x2.pth\n"
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	cfg, err := LoadWeightsConfig(path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.BaseDir != "/models/sd15" {
		t.Errorf("base_dir not applied: %q", cfg.BaseDir)
	}
	if cfg.ESRGANx2 != "/models/esrgan/x2.pth" {
		t.Errorf("esrgan_x2 not applied: %q", cfg.ESRGANx2)
	}
	if cfg.InpaintDir != DefaultInpaintDir {
		t.Errorf("unset field should keep default, got: %q", cfg.InpaintDir)
	}
	if cfg.ControlNetDir != DefaultControlNetDir {
		t.Errorf("unset field should keep default, got: %q", cfg.ControlNetDir)
	}
}

func TestLoadWeightsConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(path, []byte("\t:not yaml"), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err := LoadWeightsConfig(path)
	if !errors.Is(err, ErrSetup) {
		t.Errorf("expected ErrSetup for bad manifest, got: %v", err)
	}
}

func TestLoadWeightsConfig_MissingFile(t *testing.T) {
	_, err := LoadWeightsConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrSetup) {
		t.Errorf("expected ErrSetup for missing manifest, got: %v", err)
	}
}

func TestWeightsConfig_Paths(t *testing.T) {
	paths := DefaultWeightsConfig().Paths()
	if len(paths) != 5 {
		t.Fatalf("expected 5 paths, got %d", len(paths))
	}
	for _, p := range paths {
		if p == "" {
			t.Error("default config contains an empty path")
		}
	}
}

func TestDefaultScheduleConfig(t *testing.T) {
	cfg := DefaultScheduleConfig()
	if cfg.NumTrainTimesteps != 1000 {
		t.Errorf("unexpected timestep count: %d", cfg.NumTrainTimesteps)
	}
	if cfg.BetaSchedule != "scaled_linear" {
		t.Errorf("unexpected beta schedule: %q", cfg.BetaSchedule)
	}
}
