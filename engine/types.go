package engine

import (
	"fmt"
	"image"
)

// Mode selects which of the two conditioned pipelines serves a request.
type Mode int

const (
	// ModeRefine runs the image-to-image refinement pipeline.
	ModeRefine Mode = iota
	// ModeInpaint runs the mask-guided inpainting pipeline.
	ModeInpaint
)

func (m Mode) String() string {
	switch m {
	case ModeRefine:
		return "refine"
	case ModeInpaint:
		return "inpaint"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// NumOutputs is the number of samples each pipeline invocation produces.
// The run contract returns a slice so this can grow without an API change.
const NumOutputs = 1

// ScheduleConfig holds the sampling-schedule hyperparameters shared by all
// schedule algorithms. They are fixed by the loaded pipeline's weights, so a
// request may only swap the algorithm family, never these values.
type ScheduleConfig struct {
	NumTrainTimesteps int
	BetaStart         float64
	BetaEnd           float64
	BetaSchedule      string
	PredictionType    string
}

// DefaultScheduleConfig returns the schedule hyperparameters the SD 1.5
// family of pipelines ships with.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		NumTrainTimesteps: 1000,
		BetaStart:         0.00085,
		BetaEnd:           0.012,
		BetaSchedule:      "scaled_linear",
		PredictionType:    "epsilon",
	}
}

// Schedule is a fully-resolved sampling schedule: an algorithm family plus
// the pipeline's shared hyperparameters.
type Schedule struct {
	Algorithm string
	Config    ScheduleConfig
}

// RunArgs carries everything one pipeline invocation needs. The conditioning
// image doubles as both the image to refine and the control image.
type RunArgs struct {
	Mode           Mode
	Prompt         string
	NegativePrompt string

	// Image is the image being refined; ControlImage structurally guides
	// the conditioning sub-model. The orchestrator passes the same
	// prepared image for both.
	Image        *image.RGBA
	ControlImage *image.RGBA

	// Mask is required for ModeInpaint and must be nil otherwise.
	Mask *image.RGBA

	// Strength is the denoising strength ("creativity", 0..1).
	Strength float64
	// ConditioningScale is the control conditioning strength
	// ("resemblance", 0..1).
	ConditioningScale float64

	GuidanceScale float64
	Steps         int
	Seed          int64
	GuessMode     bool

	Schedule Schedule
}

// validate rejects argument combinations the pipelines cannot run.
func (a RunArgs) validate() error {
	if a.Image == nil || a.ControlImage == nil {
		return fmt.Errorf("%w: missing conditioning image", ErrInvalidArgs)
	}
	if a.Mode == ModeInpaint && a.Mask == nil {
		return fmt.Errorf("%w: inpaint mode requires a mask", ErrInvalidArgs)
	}
	if a.Mode == ModeRefine && a.Mask != nil {
		return fmt.Errorf("%w: refine mode does not accept a mask", ErrInvalidArgs)
	}
	if a.Steps < 1 {
		return fmt.Errorf("%w: steps must be at least 1", ErrInvalidArgs)
	}
	return nil
}
