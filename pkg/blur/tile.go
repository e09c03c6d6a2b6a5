package blur

import (
	"image"
)

// TilePadding returns how many pixels of real neighbourhood a tile needs
// on each side so that blurring the padded tile on its own gives exactly
// the same center pixels as blurring the whole image.
//
// Every pass widens the dependency region by its radius, so the sum of
// the radii is enough. The result is also at least 2*max(r)+1, which
// keeps any padded tile not clamped by the image edge larger than a box.
func TilePadding(sigma float64) int {
	var sum, largest int
	for _, r := range BoxRadii(sigma) {
		sum += r
		largest = max(largest, r)
	}
	return max(sum, 2*largest+1)
}

// Tiles splits a width x height image into tiles of at most
// tileSize x tileSize, in row-major order.
func Tiles(width, height, tileSize int) []image.Rectangle {
	var tiles []image.Rectangle
	for y := 0; y < height; y += tileSize {
		for x := 0; x < width; x += tileSize {
			tiles = append(tiles, image.Rect(x, y, min(x+tileSize, width), min(y+tileSize, height)))
		}
	}
	return tiles
}

// PaddedBounds grows tile by padding on every side and clamps the result
// to the image.
func PaddedBounds(width, height int, tile image.Rectangle, padding int) image.Rectangle {
	return tile.Inset(-padding).Intersect(image.Rect(0, 0, width, height))
}

// ExtractRegion copies the pixels of r out of an image of the given width.
func ExtractRegion(pix []Pixel, width int, r image.Rectangle) []Pixel {
	out := make([]Pixel, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * width
		out = append(out, pix[row+r.Min.X:row+r.Max.X]...)
	}
	return out
}

// ExtractCenter removes the padding from a blurred padded tile.
func ExtractCenter(tilePix []Pixel, padded, tile image.Rectangle) []Pixel {
	return ExtractRegion(tilePix, padded.Dx(), tile.Sub(padded.Min))
}

// PasteRegion copies src, laid out as r.Dx() x r.Dy(), into r of dst.
func PasteRegion(dst []Pixel, width int, r image.Rectangle, src []Pixel) {
	w := r.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * width
		copy(dst[row+r.Min.X:row+r.Max.X], src[(y-r.Min.Y)*w:])
	}
}
