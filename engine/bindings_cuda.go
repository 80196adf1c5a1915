//go:build diffusion && cgo && !stub

// Real CGo implementation of the diffusion runtime bindings.
// Build with: CGO_ENABLED=1 go build -tags diffusion
//
// Prerequisites:
//  1. The native diffusion runtime compiled as a shared library
//  2. CGO_CFLAGS pointing at its headers
//  3. CGO_LDFLAGS linking the library
//
// Example:
//
//	CGO_CFLAGS="-I${DIFFUSION_PATH}" \
//	CGO_LDFLAGS="-L${DIFFUSION_PATH}/build -ldiffusion -Wl,-rpath,${DIFFUSION_PATH}/build" \
//	go build -tags diffusion

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../vendor/diffusion-runtime
#cgo LDFLAGS: -L${SRCDIR}/../vendor/diffusion-runtime/build -ldiffusion

#include <stdlib.h>
#include <stdint.h>

// Placeholder declarations until the runtime headers land. The real header
// exposes:
//
//   dr_ctx_t* dr_load_controlnet(const char* dir);
//   dr_ctx_t* dr_load_pipeline(const char* dir, dr_ctx_t* controlnet, int inpaint);
//   dr_ctx_t* dr_load_esrgan(const char* path, int scale);
//   uint8_t*  dr_run(dr_ctx_t* pipe, dr_run_args_t* args, int* out_w, int* out_h);
//   uint8_t*  dr_upscale(dr_ctx_t* esrgan, const uint8_t* rgba, int w, int h);
//   void      dr_free_ctx(dr_ctx_t* ctx);
//   void      dr_free_image(uint8_t* img);
//   void      dr_empty_cache(void);
//   const char* dr_backend_info(void);

typedef void* dr_ctx_t;
*/
import "C"

import (
	"fmt"
	"image"
	"os"
	"sync/atomic"
	"unsafe"
)

var cudaHandleCounter uint64

// nativeContexts maps handle IDs to their native contexts.
var nativeContexts = make(map[uint64]C.dr_ctx_t)

func loadConditioningImpl(dir string) (*conditioningHandle, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrWeightsMissing, dir)
	}

	cDir := C.CString(dir)
	defer C.free(unsafe.Pointer(cDir))

	// TODO: call dr_load_controlnet once the runtime header is vendored.
	return nil, fmt.Errorf("%w: diffusion runtime bindings not linked", ErrSetup)
}

func loadPipelineImpl(mode Mode, dir string, cond *conditioningHandle) (*pipelineHandle, error) {
	if cond == nil || !cond.valid {
		return nil, fmt.Errorf("%w: conditioning sub-model not loaded", ErrSetup)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrWeightsMissing, dir)
	}

	cDir := C.CString(dir)
	defer C.free(unsafe.Pointer(cDir))

	_ = atomic.AddUint64(&cudaHandleCounter, 1)
	return nil, fmt.Errorf("%w: diffusion runtime bindings not linked", ErrSetup)
}

func loadUpscalerImpl(path string, scale int) (*upscalerHandle, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrWeightsMissing, path)
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	return nil, fmt.Errorf("%w: diffusion runtime bindings not linked", ErrSetup)
}

func runPipelineImpl(h *pipelineHandle, args RunArgs) ([]*image.RGBA, error) {
	return nil, fmt.Errorf("%w: diffusion runtime bindings not linked", ErrInferenceFailed)
}

func runUpscalerImpl(h *upscalerHandle, img *image.RGBA) (*image.RGBA, error) {
	return nil, fmt.Errorf("%w: diffusion runtime bindings not linked", ErrInferenceFailed)
}

func freePipelineImpl(h *pipelineHandle) {
	if h == nil || !h.valid {
		return
	}
	h.valid = false
	delete(nativeContexts, h.id)
}

func freeConditioningImpl(h *conditioningHandle) {
	if h == nil || !h.valid {
		return
	}
	h.valid = false
	delete(nativeContexts, h.id)
}

func freeUpscalerImpl(h *upscalerHandle) {
	if h == nil || !h.valid {
		return
	}
	h.valid = false
	delete(nativeContexts, h.id)
}

func releaseDeviceCacheImpl() {
	// TODO: call dr_empty_cache once the runtime header is vendored.
}

func backendInfoImpl() string {
	return "cuda (diffusion runtime)"
}
