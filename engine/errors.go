// Package engine hosts the GPU-resident diffusion pipelines and
// super-resolution models behind an exclusive-access guard.
package engine

import "errors"

// Sentinel errors for the model host and bindings.
var (
	// Setup errors: fatal, the process cannot serve requests.
	ErrSetup          = errors.New("engine: setup failed")
	ErrWeightsMissing = errors.New("engine: weight cache not found")

	// Per-request errors.
	ErrInferenceFailed = errors.New("engine: inference failed")
	ErrOutOfMemory     = errors.New("engine: device out of memory")
	ErrInvalidArgs     = errors.New("engine: invalid run arguments")

	// Lifecycle errors.
	ErrHostClosed = errors.New("engine: host is closed")
)
