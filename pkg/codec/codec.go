// Package codec encodes queue messages and pixel payloads.
//
// Messages are CBOR with Core Deterministic Encoding. Pixel payloads are
// packed RGB bytes compressed with zstd; neighbouring pixels of a blurred
// tile are highly correlated, so tiles shrink well.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"go-blur/pkg/blur"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// EncodeAll and DecodeAll are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// PackPixels flattens pix to RGB bytes and compresses them.
func PackPixels(pix []blur.Pixel) []byte {
	raw := make([]byte, 0, len(pix)*3)
	for _, p := range pix {
		raw = append(raw, p[0], p[1], p[2])
	}
	return zstdEncoder.EncodeAll(raw, nil)
}

// UnpackPixels reverses PackPixels. It fails unless the payload holds
// exactly n pixels.
func UnpackPixels(data []byte, n int) ([]blur.Pixel, error) {
	raw, err := zstdDecoder.DecodeAll(data, make([]byte, 0, n*3))
	if err != nil {
		return nil, fmt.Errorf("unable to decompress pixels: %w", err)
	}
	if len(raw) != n*3 {
		return nil, fmt.Errorf("expected %d pixels, got %d bytes", n, len(raw))
	}

	pix := make([]blur.Pixel, n)
	for i := range pix {
		pix[i] = blur.Pixel{raw[3*i], raw[3*i+1], raw[3*i+2]}
	}
	return pix, nil
}
