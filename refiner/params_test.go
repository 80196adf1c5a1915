package refiner

import (
	"errors"
	"testing"

	"refinery/imaging"
)

func validParams() Params {
	p := DefaultParams()
	p.Prompt = "a red bicycle"
	p.ImagePath = "/tmp/in.png"
	return p
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()

	if p.Resolution != imaging.ResolutionOriginal {
		t.Errorf("default resolution: %q", p.Resolution)
	}
	if p.Resemblance != 0.75 {
		t.Errorf("default resemblance: %v", p.Resemblance)
	}
	if p.Creativity != 0.25 {
		t.Errorf("default creativity: %v", p.Creativity)
	}
	if p.HDR != 0 {
		t.Errorf("default hdr: %v", p.HDR)
	}
	if p.Scheduler != SchedulerDDIM {
		t.Errorf("default scheduler: %q", p.Scheduler)
	}
	if p.Steps != 20 {
		t.Errorf("default steps: %d", p.Steps)
	}
	if p.GuidanceScale != 7.0 {
		t.Errorf("default guidance scale: %v", p.GuidanceScale)
	}
	if p.Seed != RandomSeedSentinel {
		t.Errorf("default seed: %d", p.Seed)
	}
	if p.NegativePrompt == "" {
		t.Error("default negative prompt must not be empty")
	}
	if p.GuessMode {
		t.Error("guess mode must default to false")
	}
}

func TestParamsValidate_Valid(t *testing.T) {
	if err := validParams().Validate(); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestParamsValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"empty prompt", func(p *Params) { p.Prompt = "" }},
		{"whitespace prompt", func(p *Params) { p.Prompt = "   " }},
		{"missing image", func(p *Params) { p.ImagePath = "" }},
		{"bad resolution", func(p *Params) { p.Resolution = "4096" }},
		{"resemblance below range", func(p *Params) { p.Resemblance = -0.1 }},
		{"resemblance above range", func(p *Params) { p.Resemblance = 1.1 }},
		{"creativity above range", func(p *Params) { p.Creativity = 2 }},
		{"hdr below range", func(p *Params) { p.HDR = -0.5 }},
		{"hdr above range", func(p *Params) { p.HDR = 1.5 }},
		{"bad scheduler", func(p *Params) { p.Scheduler = "PLMS" }},
		{"zero steps", func(p *Params) { p.Steps = 0 }},
		{"guidance too low", func(p *Params) { p.GuidanceScale = 0.05 }},
		{"guidance too high", func(p *Params) { p.GuidanceScale = 31 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got: %v", err)
			}
		})
	}
}

func TestParamsValidate_ExplicitSeedAllowed(t *testing.T) {
	p := validParams()
	p.Seed = 123456789
	if err := p.Validate(); err != nil {
		t.Errorf("explicit seed must validate, got: %v", err)
	}
}
