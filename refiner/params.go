package refiner

import (
	"fmt"
	"strings"

	"refinery/imaging"
)

// Parameter range constants.
const (
	MinConditioningWeight = 0.0
	MaxConditioningWeight = 1.0

	MinGuidanceScale = 0.1
	MaxGuidanceScale = 30.0

	MinSteps = 1
)

// DefaultNegativePrompt is the boilerplate negative prompt applied when the
// request does not supply one.
const DefaultNegativePrompt = "teeth, tooth, open mouth, longbody, lowres, " +
	"bad anatomy, bad hands, missing fingers, extra digit, fewer digits, " +
	"cropped, worst quality, low quality, mutant"

// RandomSeedSentinel marks a request that wants a derived seed.
const RandomSeedSentinel = -1

// Params holds one refinement request.
type Params struct {
	// Prompt guides generation. Required.
	Prompt string
	// ImagePath is the image to refine. Required.
	ImagePath string
	// MaskPath restricts refinement to the masked region. Optional; when
	// set, the mask must match the image's dimensions exactly and the
	// resolution tier must be "original".
	MaskPath string

	// Resolution selects the conditioning-image tier.
	Resolution imaging.Resolution

	// Resemblance is the conditioning strength (0..1).
	Resemblance float64
	// Creativity is the denoising strength (0..1); 1 means total
	// destruction of the original image.
	Creativity float64
	// HDR is the intensity of the tone-mapping effect (0..1).
	HDR float64

	Scheduler     Scheduler
	Steps         int
	GuidanceScale float64

	// Seed controls deterministic generation; RandomSeedSentinel derives
	// one from OS entropy.
	Seed int64

	NegativePrompt string

	// GuessMode asks the conditioning encoder to recognize the input
	// content even with no prompt.
	GuessMode bool
}

// DefaultParams returns request defaults. Callers set at minimum Prompt and
// ImagePath.
func DefaultParams() Params {
	return Params{
		Resolution:     imaging.ResolutionOriginal,
		Resemblance:    0.75,
		Creativity:     0.25,
		HDR:            0,
		Scheduler:      SchedulerDDIM,
		Steps:          20,
		GuidanceScale:  7.0,
		Seed:           RandomSeedSentinel,
		NegativePrompt: DefaultNegativePrompt,
	}
}

// Validate checks every parameter range before any inference work begins.
// All violations report ErrInvalidArgument.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidArgument)
	}
	if p.ImagePath == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidArgument)
	}
	if !p.Resolution.Valid() {
		return fmt.Errorf("%w: resolution %q (want original, 1024 or 2048)",
			ErrInvalidArgument, p.Resolution)
	}
	if p.Resemblance < MinConditioningWeight || p.Resemblance > MaxConditioningWeight {
		return fmt.Errorf("%w: resemblance %.3f must be in [%.0f,%.0f]",
			ErrInvalidArgument, p.Resemblance, MinConditioningWeight, MaxConditioningWeight)
	}
	if p.Creativity < MinConditioningWeight || p.Creativity > MaxConditioningWeight {
		return fmt.Errorf("%w: creativity %.3f must be in [%.0f,%.0f]",
			ErrInvalidArgument, p.Creativity, MinConditioningWeight, MaxConditioningWeight)
	}
	if p.HDR < 0 || p.HDR > 1 {
		return fmt.Errorf("%w: hdr %.3f must be in [0,1]", ErrInvalidArgument, p.HDR)
	}
	if !p.Scheduler.Valid() {
		return fmt.Errorf("%w: unsupported scheduler %q", ErrInvalidArgument, p.Scheduler)
	}
	if p.Steps < MinSteps {
		return fmt.Errorf("%w: steps %d must be at least %d", ErrInvalidArgument, p.Steps, MinSteps)
	}
	if p.GuidanceScale < MinGuidanceScale || p.GuidanceScale > MaxGuidanceScale {
		return fmt.Errorf("%w: guidance_scale %.2f must be in [%.1f,%.1f]",
			ErrInvalidArgument, p.GuidanceScale, MinGuidanceScale, MaxGuidanceScale)
	}
	return nil
}
