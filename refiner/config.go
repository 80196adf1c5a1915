package refiner

import (
	"os"
	"strconv"

	"refinery/imaging"
)

// Config holds request defaults and the output location, loaded from
// environment variables.
type Config struct {
	// OutputDir is where output artifacts are written.
	OutputDir string

	// Request defaults applied when a field is absent.
	DefaultResolution     imaging.Resolution
	DefaultScheduler      Scheduler
	DefaultSteps          int
	DefaultGuidanceScale  float64
	DefaultNegativePrompt string
}

// LoadConfig reads refiner configuration from the environment:
//
//	REFINERY_OUTPUT_DIR       output artifact directory
//	REFINERY_RESOLUTION       default resolution tier
//	REFINERY_SCHEDULER        default scheduler name
//	REFINERY_STEPS            default step count
//	REFINERY_GUIDANCE_SCALE   default guidance scale
//	REFINERY_NEGATIVE_PROMPT  default negative prompt
//
// Invalid or absent values fall back to defaults.
func LoadConfig() Config {
	defaults := DefaultParams()

	return Config{
		OutputDir:             envOrDefault("REFINERY_OUTPUT_DIR", defaultOutputDir()),
		DefaultResolution:     parseResolution(os.Getenv("REFINERY_RESOLUTION"), defaults.Resolution),
		DefaultScheduler:      parseScheduler(os.Getenv("REFINERY_SCHEDULER"), defaults.Scheduler),
		DefaultSteps:          parseSteps(os.Getenv("REFINERY_STEPS"), defaults.Steps),
		DefaultGuidanceScale:  parseGuidance(os.Getenv("REFINERY_GUIDANCE_SCALE"), defaults.GuidanceScale),
		DefaultNegativePrompt: envOrDefault("REFINERY_NEGATIVE_PROMPT", defaults.NegativePrompt),
	}
}

// Params returns a Params seeded with this config's defaults.
func (c Config) Params() Params {
	p := DefaultParams()
	p.Resolution = c.DefaultResolution
	p.Scheduler = c.DefaultScheduler
	p.Steps = c.DefaultSteps
	p.GuidanceScale = c.DefaultGuidanceScale
	p.NegativePrompt = c.DefaultNegativePrompt
	return p
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseResolution(s string, fallback imaging.Resolution) imaging.Resolution {
	r := imaging.Resolution(s)
	if !r.Valid() {
		return fallback
	}
	return r
}

func parseScheduler(s string, fallback Scheduler) Scheduler {
	sched := Scheduler(s)
	if !sched.Valid() {
		return fallback
	}
	return sched
}

func parseSteps(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	steps, err := strconv.Atoi(s)
	if err != nil || steps < MinSteps {
		return fallback
	}
	return steps
}

func parseGuidance(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	scale, err := strconv.ParseFloat(s, 64)
	if err != nil || scale < MinGuidanceScale || scale > MaxGuidanceScale {
		return fallback
	}
	return scale
}
