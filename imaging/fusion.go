package imaging

import (
	"image"
	"math"
)

// Exposure fusion (Mertens, Kautz, Van Reeth: "Exposure Fusion", 2007).
//
// Each bracketed variant gets a per-pixel weight from three quality
// measures: contrast (Laplacian response), saturation (channel stddev) and
// well-exposedness (distance of each channel from mid-gray). The weighted
// variants are blended in a Laplacian pyramid so that seams between
// differently-exposed regions stay invisible.

const (
	// fusionSigma is the well-exposedness Gaussian width around 0.5.
	fusionSigma = 0.2

	// fusionEps keeps weight normalization finite on flat black frames.
	fusionEps = 1e-12

	// maxPyramidLevels caps pyramid depth; the top level of a deeper
	// pyramid carries no useful detail for fusion.
	maxPyramidLevels = 8

	// minPyramidSize stops pyramid construction before a side collapses
	// below a usable footprint.
	minPyramidSize = 4
)

// plane is a single-channel float64 raster with values nominally in [0,1].
type plane struct {
	w, h int
	pix  []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float64, w*h)}
}

func (p *plane) at(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= p.w {
		x = p.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.h {
		y = p.h - 1
	}
	return p.pix[y*p.w+x]
}

func (p *plane) set(x, y int, v float64) {
	p.pix[y*p.w+x] = v
}

// fuseExposures fuses the bracketed variants into one 8-bit image.
// All variants must share the dimensions of the first.
func fuseExposures(variants []*image.RGBA) *image.RGBA {
	bounds := variants[0].Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	channels := make([][3]*plane, len(variants))
	weights := make([]*plane, len(variants))
	for i, v := range variants {
		channels[i] = splitChannels(v)
		weights[i] = qualityWeight(channels[i])
	}
	normalizeWeights(weights)

	levels := pyramidLevels(w, h)

	// Blend Laplacian pyramids of the variants under Gaussian pyramids of
	// their weights, then collapse.
	var blended [][3]*plane
	for i := range variants {
		wPyr := gaussianPyramid(weights[i], levels)
		for c := 0; c < 3; c++ {
			lPyr := laplacianPyramid(channels[i][c], levels)
			if blended == nil {
				blended = make([][3]*plane, len(lPyr))
			}
			for l := range lPyr {
				if blended[l][c] == nil {
					blended[l][c] = newPlane(lPyr[l].w, lPyr[l].h)
				}
				acc := blended[l][c]
				for px := range lPyr[l].pix {
					acc.pix[px] += wPyr[l].pix[px] * lPyr[l].pix[px]
				}
			}
		}
	}

	var fused [3]*plane
	for c := 0; c < 3; c++ {
		levelPlanes := make([]*plane, len(blended))
		for l := range blended {
			levelPlanes[l] = blended[l][c]
		}
		fused[c] = collapsePyramid(levelPlanes)
	}

	return mergeChannels(fused, variants[0])
}

// splitChannels extracts normalized [0,1] R, G, B planes from an image.
func splitChannels(img *image.RGBA) [3]*plane {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	var out [3]*plane
	for c := 0; c < 3; c++ {
		out[c] = newPlane(w, h)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			out[0].set(x, y, float64(img.Pix[i])/255.0)
			out[1].set(x, y, float64(img.Pix[i+1])/255.0)
			out[2].set(x, y, float64(img.Pix[i+2])/255.0)
		}
	}

	return out
}

// mergeChannels packs fused float planes back into an 8-bit RGBA image,
// carrying the alpha channel over from the source.
func mergeChannels(ch [3]*plane, src *image.RGBA) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	w, h := bounds.Dx(), bounds.Dy()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			j := dst.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			dst.Pix[j] = to8bit(ch[0].at(x, y))
			dst.Pix[j+1] = to8bit(ch[1].at(x, y))
			dst.Pix[j+2] = to8bit(ch[2].at(x, y))
			dst.Pix[j+3] = src.Pix[src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)+3]
		}
	}

	return dst
}

// qualityWeight computes the per-pixel fusion weight of one variant from
// its contrast, saturation and well-exposedness measures.
func qualityWeight(ch [3]*plane) *plane {
	w, h := ch[0].w, ch[0].h
	gray := newPlane(w, h)
	for i := range gray.pix {
		gray.pix[i] = 0.299*ch[0].pix[i] + 0.587*ch[1].pix[i] + 0.114*ch[2].pix[i]
	}

	weight := newPlane(w, h)
	denom := 2 * fusionSigma * fusionSigma
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Contrast: absolute Laplacian response of the grayscale.
			lap := gray.at(x-1, y) + gray.at(x+1, y) + gray.at(x, y-1) + gray.at(x, y+1) - 4*gray.at(x, y)
			contrast := math.Abs(lap)

			r := ch[0].at(x, y)
			g := ch[1].at(x, y)
			b := ch[2].at(x, y)

			// Saturation: standard deviation of the three channels.
			mean := (r + g + b) / 3
			sat := math.Sqrt(((r-mean)*(r-mean) + (g-mean)*(g-mean) + (b-mean)*(b-mean)) / 3)

			// Well-exposedness: each channel close to mid-gray.
			wexp := math.Exp(-(r-0.5)*(r-0.5)/denom) *
				math.Exp(-(g-0.5)*(g-0.5)/denom) *
				math.Exp(-(b-0.5)*(b-0.5)/denom)

			weight.set(x, y, contrast*sat*wexp+fusionEps)
		}
	}

	return weight
}

// normalizeWeights scales the weight maps so they sum to one per pixel.
func normalizeWeights(weights []*plane) {
	if len(weights) == 0 {
		return
	}
	for i := range weights[0].pix {
		var sum float64
		for _, wp := range weights {
			sum += wp.pix[i]
		}
		for _, wp := range weights {
			wp.pix[i] /= sum
		}
	}
}

// pyramidLevels picks the pyramid depth for a w x h image.
func pyramidLevels(w, h int) int {
	levels := 1
	for min(w, h) >= minPyramidSize*2 && levels < maxPyramidLevels {
		w = (w + 1) / 2
		h = (h + 1) / 2
		levels++
	}
	return levels
}

// gaussianBlur applies a separable 5-tap binomial blur with edge clamping.
func gaussianBlur(p *plane) *plane {
	kernel := [5]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

	tmp := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * p.at(x+k, y)
			}
			tmp.set(x, y, sum)
		}
	}

	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * tmp.at(x, y+k)
			}
			out.set(x, y, sum)
		}
	}

	return out
}

// downsample blurs and decimates a plane by two in each dimension.
func downsample(p *plane) *plane {
	blurred := gaussianBlur(p)
	out := newPlane((p.w+1)/2, (p.h+1)/2)
	for y := 0; y < out.h; y++ {
		for x := 0; x < out.w; x++ {
			out.set(x, y, blurred.at(x*2, y*2))
		}
	}
	return out
}

// upsample resizes a plane to w x h with bilinear interpolation.
func upsample(p *plane, w, h int) *plane {
	out := newPlane(w, h)
	if p.w == w && p.h == h {
		copy(out.pix, p.pix)
		return out
	}

	sx := float64(p.w) / float64(w)
	sy := float64(p.h) / float64(h)
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		dy := fy - float64(y0)
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			dx := fx - float64(x0)

			top := p.at(x0, y0)*(1-dx) + p.at(x0+1, y0)*dx
			bot := p.at(x0, y0+1)*(1-dx) + p.at(x0+1, y0+1)*dx
			out.set(x, y, top*(1-dy)+bot*dy)
		}
	}

	return out
}

// gaussianPyramid builds a pyramid of progressively downsampled planes.
func gaussianPyramid(p *plane, levels int) []*plane {
	pyr := make([]*plane, levels)
	pyr[0] = p
	for l := 1; l < levels; l++ {
		pyr[l] = downsample(pyr[l-1])
	}
	return pyr
}

// laplacianPyramid builds a band-pass pyramid; the last level keeps the
// low-frequency residual so the pyramid collapses back to the input.
func laplacianPyramid(p *plane, levels int) []*plane {
	gauss := gaussianPyramid(p, levels)
	pyr := make([]*plane, levels)
	for l := 0; l < levels-1; l++ {
		up := upsample(gauss[l+1], gauss[l].w, gauss[l].h)
		diff := newPlane(gauss[l].w, gauss[l].h)
		for i := range diff.pix {
			diff.pix[i] = gauss[l].pix[i] - up.pix[i]
		}
		pyr[l] = diff
	}
	pyr[levels-1] = gauss[levels-1]
	return pyr
}

// collapsePyramid reconstructs a full-resolution plane from a blended
// Laplacian pyramid.
func collapsePyramid(pyr []*plane) *plane {
	acc := pyr[len(pyr)-1]
	for l := len(pyr) - 2; l >= 0; l-- {
		up := upsample(acc, pyr[l].w, pyr[l].h)
		for i := range up.pix {
			up.pix[i] += pyr[l].pix[i]
		}
		acc = up
	}
	return acc
}
