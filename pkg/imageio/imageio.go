// Package imageio loads images into blur pixel buffers and writes
// buffers back out. Alpha is dropped on the way in.
package imageio

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go-blur/pkg/blur"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

var (
	// readable lists the extensions Load understands.
	readable = map[string]bool{
		".ppm": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
	}

	// writable lists the extensions Save understands.
	writable = map[string]bool{
		".ppm": true, ".png": true, ".jpg": true, ".jpeg": true,
		".bmp": true, ".tif": true, ".tiff": true,
	}
)

// Load reads an image file into a pixel buffer.
func Load(path string) (pix []blur.Pixel, width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".ppm") {
		return ReadPPM(file)
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	pix, width, height = FromImage(img)
	return pix, width, height, nil
}

// Save writes pix to path in the format given by the path's extension.
func Save(path string, pix []blur.Pixel, width, height int) (_err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !writable[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && _err == nil {
			_err = err
		}
	}()

	if ext == ".ppm" {
		return WritePPM(file, pix, width, height)
	}

	if len(pix) != width*height {
		return fmt.Errorf("%w: %d pixels for %dx%d", blur.ErrDimensionMismatch, len(pix), width, height)
	}
	img := ToImage(pix, width, height)
	switch ext {
	case ".png":
		err = png.Encode(file, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		err = bmp.Encode(file, img)
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}

// FromImage converts any image to a row-major pixel buffer.
func FromImage(img image.Image) (pix []blur.Pixel, width, height int) {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(bounds)
		draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	}

	width, height = bounds.Dx(), bounds.Dy()
	pix = make([]blur.Pixel, 0, width*height)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		off := rgba.PixOffset(bounds.Min.X, y)
		for x := 0; x < width; x++ {
			p := rgba.Pix[off+4*x:]
			pix = append(pix, blur.Pixel{p[0], p[1], p[2]})
		}
	}
	return pix, width, height
}

// ToImage wraps a pixel buffer into an opaque RGBA image.
func ToImage(pix []blur.Pixel, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, p := range pix {
		img.Pix[4*i+0] = p[0]
		img.Pix[4*i+1] = p[1]
		img.Pix[4*i+2] = p[2]
		img.Pix[4*i+3] = 0xff
	}
	return img
}

// FindImages lists the images in dir that Load can read, skipping
// outputs of a previous run.
func FindImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !readable[strings.ToLower(filepath.Ext(name))] || strings.Contains(name, "_blurred") {
			continue
		}
		images = append(images, filepath.Join(dir, name))
	}
	sort.Strings(images)
	return images, nil
}

// BlurredPath names the output for inputPath inside outputDir. An empty
// ext keeps the input's extension, or uses PNG when Save cannot write it.
func BlurredPath(inputPath, outputDir, ext string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if ext == "" {
		ext = filepath.Ext(base)
		if !writable[strings.ToLower(ext)] {
			ext = ".png"
		}
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(outputDir, name+"_blurred"+ext)
}
