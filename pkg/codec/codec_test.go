package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-blur/pkg/blur"
	"go-blur/pkg/common"
)

func TestPackPixels(t *testing.T) {
	t.Parallel()

	pix := make([]blur.Pixel, 64*64)
	for i := range pix {
		pix[i] = blur.Pixel{uint8(i), uint8(i / 64), 7}
	}

	packed := PackPixels(pix)
	require.Less(t, len(packed), len(pix)*3, "a smooth tile must compress")

	got, err := UnpackPixels(packed, len(pix))
	require.NoError(t, err)
	require.Equal(t, pix, got)
}

func TestUnpackPixelsWrongCount(t *testing.T) {
	t.Parallel()

	packed := PackPixels([]blur.Pixel{{1, 2, 3}, {4, 5, 6}})

	_, err := UnpackPixels(packed, 3)
	require.Error(t, err)

	_, err = UnpackPixels([]byte("not zstd"), 1)
	require.Error(t, err)
}

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()

	info := &common.ImageInfo{
		ID:            3,
		InputPath:     "in/a.png",
		OutputPath:    "out/a_blurred.png",
		Width:         640,
		Height:        480,
		Sigma:         2.5,
		ExpectedTiles: 6,
		StartTime:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	a, err := Marshal(info)
	require.NoError(t, err)
	b, err := Marshal(info)
	require.NoError(t, err)
	require.Equal(t, a, b)

	var decoded common.ImageInfo
	require.NoError(t, Unmarshal(a, &decoded))
	require.True(t, info.StartTime.Equal(decoded.StartTime))
	decoded.StartTime = info.StartTime
	require.Equal(t, *info, decoded)
}
