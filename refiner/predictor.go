package refiner

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"refinery/engine"
	"refinery/imaging"
	"refinery/logging"
)

// Engine is the inference surface the orchestrator needs from the model
// host. *engine.Host satisfies it; tests substitute a fake.
type Engine interface {
	// ScheduleConfig exposes the loaded pipeline's shared schedule
	// hyperparameters.
	ScheduleConfig() engine.ScheduleConfig
	// Run executes one inference pass.
	Run(ctx context.Context, args engine.RunArgs) ([]*image.RGBA, error)
	// Upscale runs a loaded super-resolution model.
	Upscale(ctx context.Context, img *image.RGBA, scale int) (*image.RGBA, error)
}

// Recorder receives completed prediction records. Implementations must not
// fail the request; recording is best-effort.
type Recorder interface {
	Record(rec PredictionRecord)
}

// PredictionRecord summarizes one prediction for history and metrics.
type PredictionRecord struct {
	ID          string
	Prompt      string
	Scheduler   string
	Resolution  string
	Steps       int
	Seed        int64
	Status      string // "success" or "error"
	Error       string
	OutputPaths []string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Result carries the artifacts of a successful prediction.
type Result struct {
	// OutputPaths are the persisted output images, in generation order.
	OutputPaths []string
	// Seed is the seed actually used, explicit or derived.
	Seed int64
	// Duration covers preprocessing through output persistence.
	Duration time.Duration
}

// Predictor is the top-level request orchestrator.
type Predictor struct {
	engine    Engine
	outputDir string
	seed      SeedSource
	logger    *zap.Logger
	recorders []Recorder
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithOutputDir sets where output artifacts are written.
func WithOutputDir(dir string) Option {
	return func(p *Predictor) { p.outputDir = dir }
}

// WithSeedSource replaces the OS-entropy seed source.
func WithSeedSource(src SeedSource) Option {
	return func(p *Predictor) { p.seed = src }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Predictor) { p.logger = logger }
}

// WithRecorder adds a best-effort prediction recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Predictor) { p.recorders = append(p.recorders, r) }
}

// NewPredictor builds a Predictor around a loaded engine.
func NewPredictor(eng Engine, opts ...Option) *Predictor {
	p := &Predictor{
		engine:    eng,
		outputDir: defaultOutputDir(),
		seed:      RandomSeed,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict runs one refinement request end to end: validate, prepare the
// conditioning image, select a pipeline, infer, persist outputs.
//
// All validation happens before any device work so a rejected request
// wastes no GPU time. Inference itself is serialized by the engine.
func (p *Predictor) Predict(ctx context.Context, params Params) (*Result, error) {
	start := time.Now()
	id := newPredictionID()

	result, err := p.predict(ctx, id, params, start)
	p.record(id, params, result, err, start)
	if err != nil {
		return nil, err
	}

	p.logger.Info("prediction complete", logging.PredictionFields(logging.PredictionMetrics{
		ID:         id,
		Scheduler:  string(params.Scheduler),
		Resolution: string(params.Resolution),
		Steps:      params.Steps,
		Seed:       result.Seed,
		Outputs:    len(result.OutputPaths),
		Duration:   result.Duration,
	}))
	return result, nil
}

func (p *Predictor) predict(ctx context.Context, id string, params Params, start time.Time) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	factory, err := ResolveScheduler(params.Scheduler)
	if err != nil {
		return nil, err
	}

	seed := params.Seed
	if seed < 0 {
		seed = p.seed()
	}
	p.logger.Info("using seed", zap.Int64("seed", seed), zap.String("prediction_id", id))

	loaded, err := imaging.LoadFile(params.ImagePath)
	if err != nil {
		return nil, err
	}

	// Mask rules are enforced before any conditioning work: inpainting
	// cannot be combined with upscaling, and the mask must match the
	// loaded image exactly.
	var mask *image.RGBA
	mode := engine.ModeRefine
	if params.MaskPath != "" {
		if params.Resolution != imaging.ResolutionOriginal {
			return nil, fmt.Errorf("%w: cannot upscale and inpaint simultaneously", ErrInvalidArgument)
		}
		mask, err = imaging.LoadFile(params.MaskPath)
		if err != nil {
			return nil, err
		}
		if mask.Bounds().Dx() != loaded.Bounds().Dx() || mask.Bounds().Dy() != loaded.Bounds().Dy() {
			return nil, fmt.Errorf("%w: image and mask must match in size (image %dx%d, mask %dx%d)",
				ErrInvalidArgument,
				loaded.Bounds().Dx(), loaded.Bounds().Dy(),
				mask.Bounds().Dx(), mask.Bounds().Dy())
		}
		mode = engine.ModeInpaint
	}

	condition, err := imaging.ResizeForCondition(ctx, loaded, params.Resolution, p.engine)
	if err != nil {
		return nil, err
	}

	final := imaging.ApplyHDR(condition, params.HDR)

	args := engine.RunArgs{
		Mode:              mode,
		Prompt:            params.Prompt,
		NegativePrompt:    params.NegativePrompt,
		Image:             final,
		ControlImage:      final,
		Mask:              mask,
		Strength:          params.Creativity,
		ConditioningScale: params.Resemblance,
		GuidanceScale:     params.GuidanceScale,
		Steps:             params.Steps,
		Seed:              seed,
		GuessMode:         params.GuessMode,
		Schedule:          factory(p.engine.ScheduleConfig()),
	}

	outputs, err := p.engine.Run(ctx, args)
	if err != nil {
		return nil, err
	}

	paths, err := writeOutputs(p.outputDir, id, outputs)
	if err != nil {
		return nil, err
	}

	return &Result{
		OutputPaths: paths,
		Seed:        seed,
		Duration:    time.Since(start),
	}, nil
}

// record feeds every registered recorder. Recording never fails a request.
func (p *Predictor) record(id string, params Params, result *Result, err error, start time.Time) {
	if len(p.recorders) == 0 {
		return
	}

	rec := PredictionRecord{
		ID:         id,
		Prompt:     params.Prompt,
		Scheduler:  string(params.Scheduler),
		Resolution: string(params.Resolution),
		Steps:      params.Steps,
		Seed:       params.Seed,
		Status:     "success",
		Duration:   time.Since(start),
		CreatedAt:  start,
	}
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
	} else if result != nil {
		rec.Seed = result.Seed
		rec.OutputPaths = result.OutputPaths
	}

	for _, r := range p.recorders {
		r.Record(rec)
	}
}
