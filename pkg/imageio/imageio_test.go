package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go-blur/pkg/blur"
)

func TestWritePPMLayout(t *testing.T) {
	t.Parallel()

	pix := []blur.Pixel{{1, 2, 3}, {4, 5, 6}}
	var buf bytes.Buffer
	require.NoError(t, WritePPM(&buf, pix, 2, 1))
	require.Equal(t, "P6\n2\n1\n255\n\x01\x02\x03\x04\x05\x06", buf.String())

	require.ErrorIs(t, WritePPM(&buf, pix, 3, 1), blur.ErrDimensionMismatch)
}

func TestReadPPM(t *testing.T) {
	t.Parallel()

	in := "P6\n# written by hand\n2 2\n255\n" + "\x00\x00\x00\xff\x00\x00\x00\xff\x00\x00\x00\xff"
	pix, width, height, err := ReadPPM(bytes.NewBufferString(in))
	require.NoError(t, err)
	require.Equal(t, 2, width)
	require.Equal(t, 2, height)
	require.Equal(t, []blur.Pixel{{0, 0, 0}, {255, 0, 0}, {0, 255, 0}, {0, 0, 255}}, pix)
}

func TestReadPPMRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"ascii ppm":      "P3\n1 1\n255\n0 0 0\n",
		"16-bit":         "P6\n1 1\n65535\n\x00\x00\x00\x00\x00\x00",
		"zero width":     "P6\n0 1\n255\n",
		"empty":          "",
		"truncated body": "P6\n2 1\n255\n\x00\x00\x00",
	}
	for name, in := range tests {
		_, _, _, err := ReadPPM(bytes.NewBufferString(in))
		require.Error(t, err, name)
	}
}

func TestReadPPMRejectsOversizedHeader(t *testing.T) {
	t.Parallel()

	for _, header := range []string{
		"P6\n4000000000\n4000000000\n255\n",
		"P6\n9223372036854775807\n2\n255\n",
		fmt.Sprintf("P6\n%d\n2\n255\n", MaxPPMPixels),
	} {
		_, _, _, err := ReadPPM(bytes.NewBufferString(header))
		require.ErrorIs(t, err, ErrBadPPM, header)
	}

	// within the limit, a missing body is a read error, not a bad header
	_, _, _, err := ReadPPM(bytes.NewBufferString("P6\n16384\n16384\n255\n\x00\x00\x00"))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.NotErrorIs(t, err, ErrBadPPM)
}

func TestFromImageDropsAlpha(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(10, 20, 12, 21))
	img.SetNRGBA(10, 20, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	img.SetNRGBA(11, 20, color.NRGBA{R: 9, G: 8, B: 7, A: 255})

	pix, width, height := FromImage(img)
	require.Equal(t, 2, width)
	require.Equal(t, 1, height)
	require.Equal(t, []blur.Pixel{{200, 100, 50}, {9, 8, 7}}, pix)

	out := ToImage(pix, width, height)
	require.Equal(t, color.RGBA{R: 9, G: 8, B: 7, A: 255}, out.RGBAAt(1, 0))
}

func TestSaveAndLoadLosslessFormats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pix := []blur.Pixel{{1, 2, 3}, {250, 128, 0}, {7, 7, 7}, {0, 0, 255}, {90, 80, 70}, {255, 255, 255}}

	for _, ext := range []string{".ppm", ".png", ".bmp", ".tiff"} {
		path := filepath.Join(dir, "img"+ext)
		require.NoError(t, Save(path, pix, 3, 2), ext)

		got, width, height, err := Load(path)
		require.NoError(t, err, ext)
		require.Equal(t, 3, width, ext)
		require.Equal(t, 2, height, ext)
		require.Equal(t, pix, got, ext)
	}
}

func TestSaveRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	err := Save(filepath.Join(t.TempDir(), "img.webp"), []blur.Pixel{{}}, 1, 1)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFindImages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.ppm", "a_blurred.ppm", "notes.txt", "c.JPG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	images, err := FindImages(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.ppm"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.JPG"),
	}, images)
}

func TestBlurredPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, filepath.Join("out", "shot_blurred.png"), BlurredPath("in/shot.png", "out", ""))
	require.Equal(t, filepath.Join("out", "shot_blurred.ppm"), BlurredPath("in/shot.png", "out", "ppm"))
	require.Equal(t, filepath.Join("out", "anim_blurred.png"), BlurredPath("in/anim.gif", "out", ""))
}
