package imaging

import (
	"image"
	"math"
)

// hdrBracketSteps is the number of brightness-bracketed variants fused into
// the HDR result. The offsets are asymmetric around 1.0: shadows are pushed
// harder than highlights, which matches how the effect was tuned.
const hdrBracketSteps = 9

// BrightnessFactors returns the bracket of brightness multipliers for the
// given HDR intensity in [0,1]. At zero intensity every factor is 1.0.
// This is a pure function with no side effects.
func BrightnessFactors(intensity float64) []float64 {
	factors := make([]float64, hdrBracketSteps)
	for i := range factors {
		factors[i] = 1.0
	}
	if intensity <= 0 {
		return factors
	}

	offsets := []float64{-0.9, -0.7, -0.45, -0.25, 0, 0.2, 0.4, 0.6, 0.8}
	for i, off := range offsets {
		factors[i] = 1.0 + off*intensity
	}
	return factors
}

// ApplyHDR synthesizes a tone-mapped version of img by fusing a bracket of
// brightness-adjusted variants with Mertens-style exposure fusion.
//
// intensity selects how far apart the brackets sit; at or below zero the
// input is returned as an exact copy. Output dimensions always equal the
// input's, and every channel stays in 8-bit range.
func ApplyHDR(img *image.RGBA, intensity float64) *image.RGBA {
	if intensity <= 0 {
		return Clone(img)
	}

	variants := make([]*image.RGBA, 0, hdrBracketSteps)
	for _, factor := range BrightnessFactors(intensity) {
		variants = append(variants, scaleBrightness(img, factor))
	}

	return fuseExposures(variants)
}

// scaleBrightness scales the HSV value channel of every pixel by factor,
// clamping before conversion back so channels cannot overflow.
func scaleBrightness(img *image.RGBA, factor float64) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, b, a := img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]

			h, s, v := RGBToHSV(r, g, b)
			v = clamp01(v * factor)
			nr, ng, nb := HSVToRGB(h, s, v)

			j := dst.PixOffset(x, y)
			dst.Pix[j] = nr
			dst.Pix[j+1] = ng
			dst.Pix[j+2] = nb
			dst.Pix[j+3] = a
		}
	}

	return dst
}

// RGBToHSV converts an 8-bit RGB triple to HSV with h in [0,360) and
// s, v in [0,1]. This is a pure function with no side effects.
func RGBToHSV(r, g, b uint8) (h, s, v float64) {
	rf := float64(r) / 255.0
	gf := float64(g) / 255.0
	bf := float64(b) / 255.0

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	v = maxC
	if maxC > 0 {
		s = delta / maxC
	}

	if delta > 0 {
		switch maxC {
		case rf:
			h = 60 * math.Mod((gf-bf)/delta, 6)
		case gf:
			h = 60 * ((bf-rf)/delta + 2)
		default:
			h = 60 * ((rf-gf)/delta + 4)
		}
		if h < 0 {
			h += 360
		}
	}

	return h, s, v
}

// HSVToRGB converts HSV (h in [0,360), s and v in [0,1]) back to 8-bit RGB.
// This is a pure function with no side effects.
func HSVToRGB(h, s, v float64) (uint8, uint8, uint8) {
	c := v * s
	hp := math.Mod(h, 360) / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case hp < 1:
		rf, gf, bf = c, x, 0
	case hp < 2:
		rf, gf, bf = x, c, 0
	case hp < 3:
		rf, gf, bf = 0, c, x
	case hp < 4:
		rf, gf, bf = 0, x, c
	case hp < 5:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}

	return to8bit(rf + m), to8bit(gf + m), to8bit(bf + m)
}

func to8bit(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
