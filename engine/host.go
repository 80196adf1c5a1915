package engine

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Host owns the long-lived, device-resident models: the two conditioned
// pipelines built around a shared conditioning sub-model, plus the 2x and
// 4x super-resolution models. It is loaded once at startup and reused for
// the life of the process.
//
// The pipelines carry shared mutable configuration (schedule, safety
// checker, attention mode) that is rewritten on every request, so Run holds
// an exclusive lock across configure+inference+cleanup. One request
// occupies the device fully; concurrent callers queue on the lock.
type Host struct {
	mu sync.Mutex

	cond      *conditioningHandle
	refine    *pipelineHandle
	inpaint   *pipelineHandle
	upscalers map[int]*upscalerHandle

	baseSchedule ScheduleConfig
	logger       *zap.Logger
	closed       bool
}

// HostConfig configures host loading.
type HostConfig struct {
	Weights WeightsConfig
	// Logger is optional; a no-op logger is used when nil.
	Logger *zap.Logger
}

// LoadHost loads every model once. Any missing or unreadable weight cache
// makes the whole load fail with ErrSetup wrapped in; a partially-loaded
// host is released before returning.
func LoadHost(cfg HostConfig) (*Host, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	logger.Info("loading pipelines",
		zap.String("base", cfg.Weights.BaseDir),
		zap.String("inpaint", cfg.Weights.InpaintDir),
		zap.String("controlnet", cfg.Weights.ControlNetDir),
	)

	h := &Host{
		upscalers:    make(map[int]*upscalerHandle),
		baseSchedule: DefaultScheduleConfig(),
		logger:       logger,
	}

	cond, err := loadConditioning(cfg.Weights.ControlNetDir)
	if err != nil {
		return nil, fmt.Errorf("%w: conditioning sub-model: %v", ErrSetup, err)
	}
	h.cond = cond

	h.refine, err = loadPipeline(ModeRefine, cfg.Weights.BaseDir, cond)
	if err != nil {
		h.release()
		return nil, fmt.Errorf("%w: refine pipeline: %v", ErrSetup, err)
	}

	h.inpaint, err = loadPipeline(ModeInpaint, cfg.Weights.InpaintDir, cond)
	if err != nil {
		h.release()
		return nil, fmt.Errorf("%w: inpaint pipeline: %v", ErrSetup, err)
	}

	for scale, path := range map[int]string{2: cfg.Weights.ESRGANx2, 4: cfg.Weights.ESRGANx4} {
		up, err := loadUpscaler(path, scale)
		if err != nil {
			h.release()
			return nil, fmt.Errorf("%w: %dx upscaler: %v", ErrSetup, scale, err)
		}
		h.upscalers[scale] = up
	}

	logger.Info("setup complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("backend", BackendInfo()),
	)

	return h, nil
}

// ScheduleConfig returns the shared schedule hyperparameters of the loaded
// pipelines. Request-time schedules must be built from this config.
func (h *Host) ScheduleConfig() ScheduleConfig {
	return h.baseSchedule
}

// Run executes one inference pass on the pipeline selected by args.Mode.
//
// The host lock is held for the full configure+inference+cleanup span so
// one request's schedule/safety-checker mutation can never bleed into
// another's. ctx is consulted only before device work starts: once
// inference begins it runs to completion.
func (h *Host) Run(ctx context.Context, args RunArgs) ([]*image.RGBA, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHostClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pipe := h.refine
	if args.Mode == ModeInpaint {
		pipe = h.inpaint
	}

	configurePipeline(pipe, args.Schedule)

	start := time.Now()
	outputs, err := runPipeline(pipe, args)

	// Per-request scratch tensors are returned to the device on success
	// and failure alike.
	releaseDeviceCache()

	if err != nil {
		h.logger.Error("inference failed",
			zap.String("mode", args.Mode.String()),
			zap.Error(err),
		)
		return nil, err
	}

	h.logger.Info("inference complete",
		zap.String("mode", args.Mode.String()),
		zap.Int64("seed", args.Seed),
		zap.Int("steps", args.Steps),
		zap.String("scheduler", args.Schedule.Algorithm),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("outputs", len(outputs)),
	)

	return outputs, nil
}

// Upscale runs a loaded super-resolution model over img. It takes the same
// exclusive lock as Run since the models share the device.
func (h *Host) Upscale(ctx context.Context, img *image.RGBA, scale int) (*image.RGBA, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHostClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	up, ok := h.upscalers[scale]
	if !ok {
		return nil, fmt.Errorf("%w: no %dx upscaler loaded", ErrInvalidArgs, scale)
	}

	out, err := runUpscaler(up, img)
	releaseDeviceCache()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases every loaded model. Safe to call multiple times; Run and
// Upscale return ErrHostClosed afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.release()
	return nil
}

// release frees all handles. Caller holds the lock (or owns the host
// exclusively during a failed load).
func (h *Host) release() {
	freePipeline(h.refine)
	freePipeline(h.inpaint)
	freeConditioning(h.cond)
	for _, up := range h.upscalers {
		freeUpscaler(up)
	}
}
