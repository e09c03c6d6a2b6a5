package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go-blur/pkg/blur"
)

var ErrBadPPM = errors.New("not a binary 8-bit PPM (P6) image")

// MaxPPMPixels bounds the width*height a PPM header may declare.
const MaxPPMPixels = 1 << 28

// WritePPM writes pix as a binary PPM: the header "P6\n<w>\n<h>\n255\n"
// followed by the raw RGB triples.
func WritePPM(w io.Writer, pix []blur.Pixel, width, height int) error {
	if len(pix) != width*height {
		return fmt.Errorf("%w: %d pixels for %dx%d", blur.ErrDimensionMismatch, len(pix), width, height)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P6\n%d\n%d\n255\n", width, height); err != nil {
		return err
	}
	for _, p := range pix {
		if _, err := bw.Write(p[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadPPM reads a binary PPM with a maximum value of 255.
func ReadPPM(r io.Reader) (pix []blur.Pixel, width, height int, err error) {
	br := bufio.NewReader(r)

	magic, err := ppmToken(br)
	if err != nil {
		return nil, 0, 0, err
	}
	if magic != "P6" {
		return nil, 0, 0, fmt.Errorf("%w: magic %q", ErrBadPPM, magic)
	}

	var header [3]int
	for i := range header {
		tok, err := ppmToken(br)
		if err != nil {
			return nil, 0, 0, err
		}
		header[i], err = strconv.Atoi(tok)
		if err != nil || header[i] <= 0 {
			return nil, 0, 0, fmt.Errorf("%w: bad header value %q", ErrBadPPM, tok)
		}
	}
	width, height = header[0], header[1]
	if header[2] != 255 {
		return nil, 0, 0, fmt.Errorf("%w: max value %d", ErrBadPPM, header[2])
	}

	if width > MaxPPMPixels/height {
		return nil, 0, 0, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrBadPPM, width, height, MaxPPMPixels)
	}

	// Read incrementally: a short body allocates only what is present.
	size := width * height * 3
	raw, err := io.ReadAll(io.LimitReader(br, int64(size)))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("unable to read %dx%d pixels: %w", width, height, err)
	}
	if len(raw) != size {
		return nil, 0, 0, fmt.Errorf("unable to read %dx%d pixels: %w", width, height, io.ErrUnexpectedEOF)
	}

	pix = make([]blur.Pixel, width*height)
	for i := range pix {
		pix[i] = blur.Pixel{raw[3*i], raw[3*i+1], raw[3*i+2]}
	}
	return pix, width, height, nil
}

// ppmToken returns the next header token and consumes the single
// whitespace byte that ends it. Comments run from '#' to end of line.
func ppmToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: truncated header", ErrBadPPM)
			}
			return "", err
		}
		switch {
		case c == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", fmt.Errorf("%w: truncated header", ErrBadPPM)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}
