package blur

import (
	"errors"
	"fmt"
	"math"
)

// Pixel is one RGB pixel, 8 bits per channel, no alpha.
type Pixel [3]uint8

var (
	ErrInvalidDimensions = errors.New("image dimensions must be positive")
	ErrDimensionMismatch = errors.New("pixel count does not match width*height")
	ErrInvalidSigma      = errors.New("sigma must be a finite non-negative number")
	ErrRadiusTooLarge    = errors.New("box radius exceeds image extent")
)

// Validate checks every precondition of Gaussian for an image of
// width x height holding n pixels.
func Validate(width, height, n int, sigma float64) error {
	_, err := validate(width, height, n, sigma)
	return err
}

// ValidateSigma reports whether sigma can be planned into boxes.
func ValidateSigma(sigma float64) error {
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSigma, sigma)
	}
	return nil
}

func validate(width, height, n int, sigma float64) ([]int, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, width, height)
	}
	if n != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrDimensionMismatch, n, width, height)
	}
	if err := ValidateSigma(sigma); err != nil {
		return nil, err
	}

	// The narrowest planned box is at least wIdeal-2 wide, so sigmas past
	// this bound are rejected in float64 before any planning.
	extent := float64(min(width, height))
	if wIdeal := math.Sqrt(12*sigma*sigma/PassCount) + 1; wIdeal > 2*extent+8 {
		return nil, fmt.Errorf("%w: sigma %v on %dx%d", ErrRadiusTooLarge, sigma, width, height)
	}

	radii := BoxRadii(sigma)
	for _, r := range radii {
		// a window of 2r+1 must fit inside every row and every column
		if r < 0 || width <= 2*r || height <= 2*r {
			return nil, fmt.Errorf("%w: radius %d (sigma %v) on %dx%d", ErrRadiusTooLarge, r, sigma, width, height)
		}
	}
	return radii, nil
}

// Gaussian blurs pix in place with an approximate Gaussian of the given
// sigma, built from three box blur passes. All preconditions are checked
// before pix is written, so on error pix is left untouched.
func Gaussian(pix []Pixel, width, height int, sigma float64) error {
	return gaussian(pix, width, height, sigma, sequential)
}

// GaussianParallel is Gaussian with every horizontal sub-pass split into
// row ranges and every vertical sub-pass split into column ranges, run on
// up to workers goroutines. The result is identical to Gaussian.
func GaussianParallel(pix []Pixel, width, height int, sigma float64, workers int) error {
	if workers <= 1 {
		return gaussian(pix, width, height, sigma, sequential)
	}
	return gaussian(pix, width, height, sigma, partitioned(workers))
}

func gaussian(pix []Pixel, width, height int, sigma float64, part partitioner) error {
	radii, err := validate(width, height, len(pix), sigma)
	if err != nil {
		return err
	}

	scratch := make([]Pixel, len(pix))
	copy(scratch, pix)

	for _, r := range radii {
		boxBlur(pix, scratch, width, height, r, part)
	}
	return nil
}

// boxBlur runs one full pass: rows from front into back, then columns
// from back into front, so the pass result ends up in front.
func boxBlur(front, back []Pixel, width, height, radius int, part partitioner) {
	if radius == 0 {
		return
	}
	boxBlurH(front, back, width, height, radius, part)
	boxBlurV(back, front, width, height, radius, part)
}
