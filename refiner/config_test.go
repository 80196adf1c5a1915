package refiner

import (
	"testing"

	"refinery/imaging"
)

func clearRefinerEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REFINERY_OUTPUT_DIR",
		"REFINERY_RESOLUTION",
		"REFINERY_SCHEDULER",
		"REFINERY_STEPS",
		"REFINERY_GUIDANCE_SCALE",
		"REFINERY_NEGATIVE_PROMPT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearRefinerEnv(t)

	cfg := LoadConfig()
	defaults := DefaultParams()

	if cfg.OutputDir == "" {
		t.Error("output dir must have a fallback")
	}
	if cfg.DefaultResolution != defaults.Resolution {
		t.Errorf("resolution: %q", cfg.DefaultResolution)
	}
	if cfg.DefaultScheduler != defaults.Scheduler {
		t.Errorf("scheduler: %q", cfg.DefaultScheduler)
	}
	if cfg.DefaultSteps != defaults.Steps {
		t.Errorf("steps: %d", cfg.DefaultSteps)
	}
	if cfg.DefaultGuidanceScale != defaults.GuidanceScale {
		t.Errorf("guidance scale: %v", cfg.DefaultGuidanceScale)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearRefinerEnv(t)
	t.Setenv("REFINERY_OUTPUT_DIR", "/srv/refinery/out")
	t.Setenv("REFINERY_RESOLUTION", "2048")
	t.Setenv("REFINERY_SCHEDULER", "K_EULER")
	t.Setenv("REFINERY_STEPS", "35")
	t.Setenv("REFINERY_GUIDANCE_SCALE", "9.5")
	t.Setenv("REFINERY_NEGATIVE_PROMPT", "blurry")

	cfg := LoadConfig()

	if cfg.OutputDir != "/srv/refinery/out" {
		t.Errorf("output dir: %q", cfg.OutputDir)
	}
	if cfg.DefaultResolution != imaging.Resolution2048 {
		t.Errorf("resolution: %q", cfg.DefaultResolution)
	}
	if cfg.DefaultScheduler != SchedulerKEuler {
		t.Errorf("scheduler: %q", cfg.DefaultScheduler)
	}
	if cfg.DefaultSteps != 35 {
		t.Errorf("steps: %d", cfg.DefaultSteps)
	}
	if cfg.DefaultGuidanceScale != 9.5 {
		t.Errorf("guidance scale: %v", cfg.DefaultGuidanceScale)
	}
	if cfg.DefaultNegativePrompt != "blurry" {
		t.Errorf("negative prompt: %q", cfg.DefaultNegativePrompt)
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	clearRefinerEnv(t)
	t.Setenv("REFINERY_RESOLUTION", "4096")
	t.Setenv("REFINERY_SCHEDULER", "PLMS")
	t.Setenv("REFINERY_STEPS", "zero")
	t.Setenv("REFINERY_GUIDANCE_SCALE", "99")

	cfg := LoadConfig()
	defaults := DefaultParams()

	if cfg.DefaultResolution != defaults.Resolution {
		t.Errorf("resolution must fall back, got %q", cfg.DefaultResolution)
	}
	if cfg.DefaultScheduler != defaults.Scheduler {
		t.Errorf("scheduler must fall back, got %q", cfg.DefaultScheduler)
	}
	if cfg.DefaultSteps != defaults.Steps {
		t.Errorf("steps must fall back, got %d", cfg.DefaultSteps)
	}
	if cfg.DefaultGuidanceScale != defaults.GuidanceScale {
		t.Errorf("guidance scale must fall back, got %v", cfg.DefaultGuidanceScale)
	}
}

func TestConfigParams(t *testing.T) {
	cfg := Config{
		OutputDir:             "/tmp/out",
		DefaultResolution:     imaging.Resolution1024,
		DefaultScheduler:      SchedulerKEulerAncestral,
		DefaultSteps:          30,
		DefaultGuidanceScale:  5.0,
		DefaultNegativePrompt: "low quality",
	}

	p := cfg.Params()
	if p.Resolution != imaging.Resolution1024 ||
		p.Scheduler != SchedulerKEulerAncestral ||
		p.Steps != 30 ||
		p.GuidanceScale != 5.0 ||
		p.NegativePrompt != "low quality" {
		t.Errorf("config defaults not applied: %+v", p)
	}
	if p.Seed != RandomSeedSentinel {
		t.Errorf("seed must stay the random sentinel, got %d", p.Seed)
	}
}
