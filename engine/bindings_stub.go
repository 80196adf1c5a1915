//go:build !diffusion || stub

// Stub implementation of the diffusion runtime bindings.
//
// Model loads validate that the weight caches exist on disk, and inference
// fabricates deterministic output keyed by the request seed. This keeps the
// whole request path testable on machines without the native runtime.

package engine

import (
	"fmt"
	"image"
	"math/rand"
	"os"
	"sync/atomic"
)

// stubHandleCounter assigns unique IDs across all stub handle kinds.
var stubHandleCounter uint64

// stubCacheReleases counts releaseDeviceCache calls, for tests.
var stubCacheReleases uint64

func statWeights(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrWeightsMissing, path)
	} else if err != nil {
		return fmt.Errorf("%w: unable to access %s: %v", ErrSetup, path, err)
	}
	return nil
}

func loadConditioningImpl(dir string) (*conditioningHandle, error) {
	if err := statWeights(dir); err != nil {
		return nil, err
	}
	return &conditioningHandle{
		id:    atomic.AddUint64(&stubHandleCounter, 1),
		dir:   dir,
		valid: true,
	}, nil
}

func loadPipelineImpl(mode Mode, dir string, cond *conditioningHandle) (*pipelineHandle, error) {
	if cond == nil || !cond.valid {
		return nil, fmt.Errorf("%w: conditioning sub-model not loaded", ErrSetup)
	}
	if err := statWeights(dir); err != nil {
		return nil, err
	}
	return &pipelineHandle{
		id:    atomic.AddUint64(&stubHandleCounter, 1),
		mode:  mode,
		dir:   dir,
		valid: true,
	}, nil
}

func loadUpscalerImpl(path string, scale int) (*upscalerHandle, error) {
	if scale != 2 && scale != 4 {
		return nil, fmt.Errorf("%w: unsupported upscaler scale %d", ErrSetup, scale)
	}
	if err := statWeights(path); err != nil {
		return nil, err
	}
	return &upscalerHandle{
		id:    atomic.AddUint64(&stubHandleCounter, 1),
		path:  path,
		scale: scale,
		valid: true,
	}, nil
}

// runPipelineImpl fabricates output by blending seed-keyed noise into the
// conditioning image, honoring the denoising strength and, for inpainting,
// the mask. Identical args always produce identical bytes.
func runPipelineImpl(h *pipelineHandle, args RunArgs) ([]*image.RGBA, error) {
	if h == nil || !h.valid {
		return nil, fmt.Errorf("%w: pipeline handle is nil or freed", ErrInferenceFailed)
	}

	rng := rand.New(rand.NewSource(args.Seed))
	strength := args.Strength
	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}

	outputs := make([]*image.RGBA, 0, NumOutputs)
	for n := 0; n < NumOutputs; n++ {
		src := args.Image
		bounds := src.Bounds()
		out := image.NewRGBA(bounds)

		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				i := src.PixOffset(x, y)
				noise := [3]uint8{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256))}

				edit := true
				if h.mode == ModeInpaint {
					m := args.Mask
					edit = m.Pix[m.PixOffset(x, y)] > 127
				}

				j := out.PixOffset(x, y)
				for c := 0; c < 3; c++ {
					orig := float64(src.Pix[i+c])
					if edit {
						out.Pix[j+c] = uint8(orig*(1-strength) + float64(noise[c])*strength)
					} else {
						out.Pix[j+c] = src.Pix[i+c]
					}
				}
				out.Pix[j+3] = src.Pix[i+3]
			}
		}

		outputs = append(outputs, out)
	}

	return outputs, nil
}

// runUpscalerImpl fabricates super-resolution output by pixel replication.
func runUpscalerImpl(h *upscalerHandle, img *image.RGBA) (*image.RGBA, error) {
	if h == nil || !h.valid {
		return nil, fmt.Errorf("%w: upscaler handle is nil or freed", ErrInferenceFailed)
	}

	bounds := img.Bounds()
	w, h2 := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w*h.scale, h2*h.scale))

	for y := 0; y < h2*h.scale; y++ {
		for x := 0; x < w*h.scale; x++ {
			i := img.PixOffset(bounds.Min.X+x/h.scale, bounds.Min.Y+y/h.scale)
			j := out.PixOffset(x, y)
			copy(out.Pix[j:j+4], img.Pix[i:i+4])
		}
	}

	return out, nil
}

func freePipelineImpl(h *pipelineHandle) {
	if h != nil {
		h.valid = false
	}
}

func freeConditioningImpl(h *conditioningHandle) {
	if h != nil {
		h.valid = false
	}
}

func freeUpscalerImpl(h *upscalerHandle) {
	if h != nil {
		h.valid = false
	}
}

func releaseDeviceCacheImpl() {
	atomic.AddUint64(&stubCacheReleases, 1)
}

func backendInfoImpl() string {
	return "stub (no diffusion runtime linked)"
}
