package blur

// roundBias is 1.5*2^23. Adding and subtracting it leaves a float32 with
// no fractional bits, rounded half to even. Valid for |x| < 2^22.
const roundBias float32 = 12582912

// fastRound rounds x to the nearest integer, ties to even.
// The explicit conversions keep each step rounded to float32.
func fastRound(x float32) float32 {
	x = float32(x + roundBias)
	return float32(x - roundBias)
}

func average(sum *[3]int, iarr float32) Pixel {
	var p Pixel
	for c := range sum {
		p[c] = uint8(fastRound(float32(float32(sum[c]) * iarr)))
	}
	return p
}

// boxBlurLine writes into dst the moving average of width 2*radius+1 of
// the n pixels of src at start, start+stride, ... Positions outside the
// line take the value of the nearest end. Requires n > 2*radius.
func boxBlurLine(src, dst []Pixel, start, n, stride, radius int, iarr float32) {
	ti := start
	li := start
	ri := start + radius*stride

	fv := src[start]
	lv := src[start+(n-1)*stride]

	var sum [3]int
	for c := range sum {
		sum[c] = (radius + 1) * int(fv[c])
	}
	for j := 0; j < radius; j++ {
		p := src[start+j*stride]
		for c := range sum {
			sum[c] += int(p[c])
		}
	}

	// left edge: fv leaves the window
	for i := 0; i <= radius; i++ {
		in := src[ri]
		ri += stride
		for c := range sum {
			sum[c] += int(in[c]) - int(fv[c])
		}
		dst[ti] = average(&sum, iarr)
		ti += stride
	}

	for i := radius + 1; i < n-radius; i++ {
		in, out := src[ri], src[li]
		ri += stride
		li += stride
		for c := range sum {
			sum[c] += int(in[c]) - int(out[c])
		}
		dst[ti] = average(&sum, iarr)
		ti += stride
	}

	// right edge: lv enters the window
	for i := n - radius; i < n; i++ {
		out := src[li]
		li += stride
		for c := range sum {
			sum[c] += int(lv[c]) - int(out[c])
		}
		dst[ti] = average(&sum, iarr)
		ti += stride
	}
}

func inverseArea(radius int) float32 {
	return float32(1) / float32(2*radius+1)
}

// boxBlurH blurs every row of src into dst.
func boxBlurH(src, dst []Pixel, width, height, radius int, part partitioner) {
	iarr := inverseArea(radius)
	part(height, func(from, to int) {
		for y := from; y < to; y++ {
			boxBlurLine(src, dst, y*width, width, 1, radius, iarr)
		}
	})
}

// boxBlurV blurs every column of src into dst.
func boxBlurV(src, dst []Pixel, width, height, radius int, part partitioner) {
	iarr := inverseArea(radius)
	part(width, func(from, to int) {
		for x := from; x < to; x++ {
			boxBlurLine(src, dst, x, height, width, radius, iarr)
		}
	})
}
