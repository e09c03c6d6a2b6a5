package blur

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func grey(values ...uint8) []Pixel {
	pix := make([]Pixel, len(values))
	for i, v := range values {
		pix[i] = Pixel{v, v, v}
	}
	return pix
}

// naiveLine averages an explicit clamped window for every position.
func naiveLine(src []Pixel, radius int) []Pixel {
	n := len(src)
	iarr := inverseArea(radius)
	dst := make([]Pixel, n)
	for i := range src {
		var sum [3]int
		for j := i - radius; j <= i+radius; j++ {
			p := src[min(max(j, 0), n-1)]
			for c := range sum {
				sum[c] += int(p[c])
			}
		}
		dst[i] = average(&sum, iarr)
	}
	return dst
}

func TestBoxBlurLineSpike(t *testing.T) {
	t.Parallel()

	src := grey(0, 0, 255, 0, 0)
	dst := make([]Pixel, len(src))
	boxBlurLine(src, dst, 0, len(src), 1, 1, inverseArea(1))

	require.Equal(t, grey(0, 85, 85, 85, 0), dst)
}

func TestBoxBlurLineStride(t *testing.T) {
	t.Parallel()

	// the spike as the second column of a 3x5 image
	const width = 3
	src := make([]Pixel, width*5)
	src[2*width+1] = Pixel{255, 255, 255}
	dst := make([]Pixel, len(src))

	boxBlurLine(src, dst, 1, 5, width, 1, inverseArea(1))

	var column []Pixel
	for y := 0; y < 5; y++ {
		column = append(column, dst[y*width+1])
		require.Equal(t, Pixel{}, dst[y*width], "column 0 must not be written")
		require.Equal(t, Pixel{}, dst[y*width+2], "column 2 must not be written")
	}
	require.Equal(t, grey(0, 85, 85, 85, 0), column)
}

func TestBoxBlurLineEdgeReplication(t *testing.T) {
	t.Parallel()

	src := grey(10, 20, 30, 40, 50, 60, 70)
	dst := make([]Pixel, len(src))
	boxBlurLine(src, dst, 0, len(src), 1, 2, inverseArea(2))

	// position 0 averages {10, 10, 10, 20, 30}, position 6 {50, 60, 70, 70, 70}
	require.Equal(t, grey(16, 22, 30, 40, 50, 58, 64), dst)
}

func TestBoxBlurLineMatchesNaiveWindow(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for n := 1; n <= 40; n++ {
		for radius := 0; 2*radius < n; radius++ {
			src := make([]Pixel, n)
			for i := range src {
				src[i] = Pixel{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256))}
			}
			dst := make([]Pixel, n)
			boxBlurLine(src, dst, 0, n, 1, radius, inverseArea(radius))
			require.Equal(t, naiveLine(src, radius), dst, "n=%d radius=%d", n, radius)
		}
	}
}

func TestBoxBlurPassHorizontalThenVertical(t *testing.T) {
	t.Parallel()

	const width, height, radius = 11, 9, 2
	src := randomImage(5, width, height)

	// reference: naive rows, then naive columns
	rows := make([]Pixel, 0, len(src))
	for y := 0; y < height; y++ {
		rows = append(rows, naiveLine(src[y*width:(y+1)*width], radius)...)
	}
	want := make([]Pixel, len(src))
	for x := 0; x < width; x++ {
		column := make([]Pixel, height)
		for y := range column {
			column[y] = rows[y*width+x]
		}
		for y, p := range naiveLine(column, radius) {
			want[y*width+x] = p
		}
	}

	for i := 0; i < 2; i++ {
		front := clonePixels(src)
		back := clonePixels(src)
		boxBlur(front, back, width, height, radius, sequential)
		require.Equal(t, want, front, "run %d", i)
	}
}

func TestFastRound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float32
		want float32
	}{
		{0, 0},
		{1, 1},
		{255, 255},
		{0.49, 0},
		{0.51, 1},
		{2.5, 2},
		{3.5, 4},
		{84.99, 85},
		{85.000001, 85},
		{254.6, 255},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, fastRound(tt.in), "round(%v)", tt.in)
	}
}
