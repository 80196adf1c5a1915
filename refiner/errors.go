// Package refiner orchestrates image-refinement requests: it validates
// parameters, prepares the conditioning image, selects between the
// refinement and inpainting pipelines, and collects output artifacts.
package refiner

import "errors"

// ErrInvalidArgument rejects a request before any inference work begins:
// unsupported scheduler names, out-of-range numeric parameters, and invalid
// mask combinations all wrap it. Other requests are unaffected.
var ErrInvalidArgument = errors.New("refiner: invalid argument")
