package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ConditionAlignment is the pixel alignment required by the conditioning
// model: both dimensions of a conditioning image must be a multiple of this.
// This is a documented contract of the downstream convolutional conditioning
// network, not a tunable.
const ConditionAlignment = 64

// conditionTargetMin is the target size for the shorter side of a
// conditioning image when a non-original resolution tier is selected.
const conditionTargetMin = 1024

// Resolution selects whether and how much the conditioning image is
// resized/upscaled before inference.
type Resolution string

// Supported resolution tiers.
const (
	ResolutionOriginal Resolution = "original"
	Resolution1024     Resolution = "1024"
	Resolution2048     Resolution = "2048"
)

// ErrInvalidResolution reports an unsupported resolution tier.
var ErrInvalidResolution = errors.New("imaging: invalid resolution")

// Valid reports whether r is a supported resolution tier.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionOriginal, Resolution1024, Resolution2048:
		return true
	}
	return false
}

// Upscaler runs a super-resolution model over an image. The engine's
// GPU-resident ESRGAN models satisfy this; tests substitute a fake.
type Upscaler interface {
	Upscale(ctx context.Context, img *image.RGBA, scale int) (*image.RGBA, error)
}

// ResizeForCondition produces the conditioning image for the given
// resolution tier.
//
//   - "original": an unmodified copy of the input.
//   - "1024": the image scaled so its shorter side lands near 1024px, with
//     both dimensions rounded to the nearest ConditionAlignment multiple.
//   - "2048": the "1024" result passed through the 2x super-resolution
//     model, so the pipeline works at its native resolution and the
//     upscaler supplies the extra fidelity.
//
// Resampling uses Catmull-Rom, the highest-quality scaler x/image offers.
func ResizeForCondition(ctx context.Context, img *image.RGBA, tier Resolution, up Upscaler) (*image.RGBA, error) {
	switch tier {
	case ResolutionOriginal:
		return Clone(img), nil
	case Resolution1024, Resolution2048:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, tier)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	scale := float64(conditionTargetMin) / float64(min(width, height))
	newWidth := alignDimension(float64(width) * scale)
	newHeight := alignDimension(float64(height) * scale)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Src, nil)

	if tier == Resolution2048 {
		upscaled, err := up.Upscale(ctx, resized, 2)
		if err != nil {
			return nil, fmt.Errorf("upscale conditioning image: %w", err)
		}
		return upscaled, nil
	}

	return resized, nil
}

// alignDimension rounds a dimension to the nearest ConditionAlignment
// multiple, never below one full alignment unit.
func alignDimension(dim float64) int {
	aligned := int(math.Round(dim/ConditionAlignment)) * ConditionAlignment
	if aligned < ConditionAlignment {
		aligned = ConditionAlignment
	}
	return aligned
}
