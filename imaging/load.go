// Package imaging prepares conditioning images for the refinement pipelines.
//
// It covers decoding and color normalization, resizing to the conditioning
// model's resolution tiers, and the HDR exposure-fusion effect applied to
// the conditioning image before inference.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// Image loading errors
var (
	ErrEmptyImage = errors.New("imaging: empty image data")
	ErrDecode     = errors.New("imaging: cannot decode image")
)

// Decode decodes image data in any registered format (PNG, JPEG, GIF).
// This is a pure function with no side effects.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return img, nil
}

// LoadFile reads and decodes an image file, normalized to RGBA.
// Unreadable paths and corrupt files both report ErrDecode so callers
// can treat them as a single "bad input image" failure mode.
func LoadFile(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrDecode, path, err)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}

	return ToRGBA(img), nil
}

// ToRGBA converts any image to RGBA format.
// If the image is already RGBA it is returned as-is.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}

	return rgba
}

// Clone returns a deep copy of an RGBA image.
// This is a pure function with no side effects.
func Clone(img *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	copy(dst.Pix, img.Pix)
	return dst
}
