package blur

import (
	"fmt"
	"math"
)

// PassCount is the number of box passes used to approximate a Gaussian.
const PassCount = 3

// maxPlannedSigma caps the sigma PlanBoxes works with. Its boxes are
// already wider than any image that fits in memory.
const maxPlannedSigma = 1 << 28

// PlanBoxes returns passCount odd box widths whose successive application
// approximates a Gaussian with standard deviation sigma.
// See http://blog.ivank.net/fastest-gaussian-blur.html
//
// Sigmas above 1<<28 plan as 1<<28. It panics if passCount < 1.
func PlanBoxes(sigma float64, passCount int) []int {
	if passCount < 1 {
		panic(fmt.Sprintf("blur: pass count must be at least 1, got %d", passCount))
	}
	// Planning runs in float32. Explicit conversions round every
	// intermediate so m_ideal ties at x.5 resolve the same way everywhere.
	s := float32(min(sigma, maxPlannedSigma))
	n := float32(passCount)
	variance := float32(float32(12*s) * s)

	// Ideal averaging filter width
	wIdeal := float32(float32(math.Sqrt(float64(variance/n))) + 1)
	wl := int(math.Floor(float64(wIdeal)))
	if wl%2 == 0 {
		wl--
	}
	wu := wl + 2

	fl := float32(wl)
	num := variance - float32(float32(n*fl)*fl)
	num -= float32(float32(4*n) * fl)
	num -= float32(3 * n)
	mIdeal := num / float32(float32(-4*fl)-4)
	m := int(math.Round(float64(mIdeal)))

	widths := make([]int, passCount)
	for i := range widths {
		if i < m {
			widths[i] = wl
		} else {
			widths[i] = wu
		}
	}
	return widths
}

// BoxRadii returns the half-widths of the PassCount boxes for sigma.
func BoxRadii(sigma float64) []int {
	widths := PlanBoxes(sigma, PassCount)
	radii := make([]int, len(widths))
	for i, w := range widths {
		radii[i] = (w - 1) / 2
	}
	return radii
}
