// bindings.go declares the boundary to the native diffusion runtime.
//
// The package builds in two modes:
//
//   - Stub mode (default): go build
//     Validates weight paths and fabricates deterministic output so the
//     full request path is exercisable without a GPU.
//
//   - Real mode: CGO_ENABLED=1 go build -tags diffusion
//     Requires the native diffusion runtime to be built and linked.
package engine

import "image"

// pipelineHandle is an opaque handle to a loaded conditioned pipeline.
// Its configuration fields are shared mutable state: the host must hold
// its lock across configure+run.
type pipelineHandle struct {
	id   uint64
	mode Mode
	dir  string

	valid bool

	// Per-request configuration, installed by configurePipeline.
	schedule           Schedule
	safetyChecker      bool
	efficientAttention bool
}

// conditioningHandle is an opaque handle to the conditioning sub-model
// shared by both pipelines.
type conditioningHandle struct {
	id    uint64
	dir   string
	valid bool
}

// upscalerHandle is an opaque handle to a loaded super-resolution model.
type upscalerHandle struct {
	id    uint64
	path  string
	scale int
	valid bool
}

// loadConditioning loads the shared conditioning sub-model from its cache
// directory. Fails with ErrWeightsMissing if the cache is absent.
func loadConditioning(dir string) (*conditioningHandle, error) {
	return loadConditioningImpl(dir)
}

// loadPipeline loads a conditioned pipeline from its cache directory,
// built around an already-loaded conditioning sub-model.
func loadPipeline(mode Mode, dir string, cond *conditioningHandle) (*pipelineHandle, error) {
	return loadPipelineImpl(mode, dir, cond)
}

// loadUpscaler loads a super-resolution model at a fixed scale from a
// weight file.
func loadUpscaler(path string, scale int) (*upscalerHandle, error) {
	return loadUpscalerImpl(path, scale)
}

// configurePipeline installs the per-request pipeline configuration:
// the resolved schedule, safety checker off, memory-efficient attention on.
// This mutates the shared pipeline object; callers serialize around it.
func configurePipeline(h *pipelineHandle, schedule Schedule) {
	h.schedule = schedule
	h.safetyChecker = false
	h.efficientAttention = true
}

// runPipeline executes one inference pass and returns the raw output
// images. Blocking; runs to completion once started.
func runPipeline(h *pipelineHandle, args RunArgs) ([]*image.RGBA, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	return runPipelineImpl(h, args)
}

// runUpscaler executes the super-resolution model over one image.
func runUpscaler(h *upscalerHandle, img *image.RGBA) (*image.RGBA, error) {
	return runUpscalerImpl(h, img)
}

// freePipeline, freeConditioning and freeUpscaler release a handle's
// native resources. Safe on nil and already-freed handles.
func freePipeline(h *pipelineHandle)         { freePipelineImpl(h) }
func freeConditioning(h *conditioningHandle) { freeConditioningImpl(h) }
func freeUpscaler(h *upscalerHandle)         { freeUpscalerImpl(h) }

// releaseDeviceCache returns per-request scratch allocations to the device
// so long-running memory growth stays bounded.
func releaseDeviceCache() {
	releaseDeviceCacheImpl()
}

// BackendInfo describes the compute backend the bindings were built for.
func BackendInfo() string {
	return backendInfoImpl()
}
