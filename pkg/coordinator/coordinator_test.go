package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-blur/pkg/blur"
	"go-blur/pkg/codec"
	"go-blur/pkg/common"
	"go-blur/pkg/imageio"
	"go-blur/pkg/queue"
)

var (
	_ JobQueue = (*queue.RedisClient)(nil)
	_ JobQueue = (*queue.MemoryQueue)(nil)
)

func testImage(width, height int) []blur.Pixel {
	pix := make([]blur.Pixel, width*height)
	for i := range pix {
		pix[i] = blur.Pixel{uint8(i), uint8(i * 7), uint8(i * 13)}
	}
	return pix
}

func drainJobs(t *testing.T, q *queue.MemoryQueue) []*common.ImageTile {
	t.Helper()

	var tiles []*common.ImageTile
	for {
		id, job, err := q.ReadJob(context.Background(), "test", time.Millisecond)
		require.NoError(t, err)
		if id == "" {
			return tiles
		}
		require.Equal(t, common.JobTypeTile, job.Type)
		tiles = append(tiles, job.ImageTile)
	}
}

func TestQueueImageSplitsIntoPaddedTiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const width, height, sigma = 40, 25, 1.8
	q := queue.NewMemoryQueue()
	c := NewCoordinator(q, sigma, 16)
	pix := testImage(width, height)

	info := &common.ImageInfo{ID: 7, InputPath: "in.png", OutputPath: "out.png"}
	require.NoError(t, c.QueueImage(ctx, info, pix, width, height))

	stored, err := q.GetImageInfo(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, width, stored.Width)
	require.Equal(t, height, stored.Height)
	require.Equal(t, sigma, stored.Sigma)
	require.Equal(t, 6, stored.ExpectedTiles)
	require.Equal(t, "out.png", stored.OutputPath)

	tiles := drainJobs(t, q)
	require.Len(t, tiles, 6)

	padding := blur.TilePadding(sigma)
	covered := make([]bool, width*height)
	for i, tile := range tiles {
		require.Equal(t, 7, tile.ImageID)
		require.Equal(t, i, tile.TileID)
		require.Equal(t, sigma, tile.Sigma)
		require.Equal(t, blur.PaddedBounds(width, height, tile.Bounds(), padding), tile.PaddedBounds())

		padded := tile.PaddedBounds()
		got, err := codec.UnpackPixels(tile.Pixels, padded.Dx()*padded.Dy())
		require.NoError(t, err)
		require.Equal(t, blur.ExtractRegion(pix, width, padded), got)

		b := tile.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				require.False(t, covered[y*width+x], "pixel (%d,%d) in two tiles", x, y)
				covered[y*width+x] = true
			}
		}
	}
	require.NotContains(t, covered, false)
}

func TestQueueImageRejectsTooSmallImage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := queue.NewMemoryQueue()
	c := NewCoordinator(q, 10, 16)

	info := &common.ImageInfo{ID: 1}
	err := c.QueueImage(ctx, info, testImage(20, 40), 20, 40)
	require.ErrorIs(t, err, blur.ErrRadiusTooLarge)

	_, err = q.GetImageInfo(ctx, 1)
	require.Error(t, err)
	require.Empty(t, drainJobs(t, q))
}

type failingQueue struct {
	*queue.MemoryQueue
}

func (failingQueue) AddJob(context.Context, *common.JobMessage) (string, error) {
	return "", errors.New("queue is full")
}

func TestQueueImageReportsQueueErrors(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(failingQueue{queue.NewMemoryQueue()}, 1, 0)
	err := c.QueueImage(context.Background(), &common.ImageInfo{ID: 1}, testImage(8, 8), 8, 8)
	require.ErrorContains(t, err, "failed to queue tile 0")
}

func TestProcessImages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.ppm")}
	for _, path := range paths {
		require.NoError(t, imageio.Save(path, testImage(12, 9), 12, 9))
	}

	q := queue.NewMemoryQueue()
	c := NewCoordinator(q, 1, common.TILE_SIZE)
	queued, err := c.ProcessImages(ctx, paths, "out", "", 100)
	require.NoError(t, err)
	require.Equal(t, 2, queued)

	for i, path := range paths {
		info, err := q.GetImageInfo(ctx, 100+i)
		require.NoError(t, err)
		require.Equal(t, path, info.InputPath)
		require.Equal(t, imageio.BlurredPath(path, "out", ""), info.OutputPath)
		require.Equal(t, 1, info.ExpectedTiles)
	}
	require.Len(t, drainJobs(t, q), 2)

	queued, err = c.ProcessImages(ctx, []string{paths[0], filepath.Join(dir, "missing.png")}, "out", "", 0)
	require.ErrorContains(t, err, "failed to load image")
	require.Equal(t, 1, queued)
}
