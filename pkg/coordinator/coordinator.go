// Package coordinator splits images into padded tiles and queues them
// as blur jobs.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"go-blur/pkg/blur"
	"go-blur/pkg/codec"
	"go-blur/pkg/common"
	"go-blur/pkg/imageio"
	"go-blur/pkg/logger"
)

// JobQueue is the part of the queue the coordinator writes to.
type JobQueue interface {
	StoreImageInfo(ctx context.Context, info *common.ImageInfo) error
	AddJob(ctx context.Context, job *common.JobMessage) (string, error)
}

type Coordinator struct {
	queue    JobQueue
	sigma    float64
	tileSize int
	padding  int
}

func NewCoordinator(queue JobQueue, sigma float64, tileSize int) *Coordinator {
	if tileSize <= 0 {
		tileSize = common.TILE_SIZE
	}
	return &Coordinator{
		queue:    queue,
		sigma:    sigma,
		tileSize: tileSize,
		padding:  blur.TilePadding(sigma),
	}
}

// ProcessImage loads the image at inputPath and queues its tiles.
func (c *Coordinator) ProcessImage(ctx context.Context, imageID int, inputPath, outputPath string) error {
	ctx = logger.WithField(ctx, "image_id", imageID)
	logger.Infof(ctx, "processing image %d from %s", imageID, inputPath)

	pix, width, height, err := imageio.Load(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	info := &common.ImageInfo{
		ID:         imageID,
		InputPath:  inputPath,
		OutputPath: outputPath,
	}
	return c.QueueImage(ctx, info, pix, width, height)
}

// QueueImage validates the image against the configured sigma, stores
// info and queues one job per tile. Nothing is queued when the image is
// rejected.
func (c *Coordinator) QueueImage(ctx context.Context, info *common.ImageInfo, pix []blur.Pixel, width, height int) error {
	startTime := time.Now()

	if err := blur.Validate(width, height, len(pix), c.sigma); err != nil {
		return fmt.Errorf("unable to blur %s: %w", info.InputPath, err)
	}

	tiles := blur.Tiles(width, height, c.tileSize)
	info.Width = width
	info.Height = height
	info.Sigma = c.sigma
	info.ExpectedTiles = len(tiles)
	info.StartTime = startTime

	if err := c.queue.StoreImageInfo(ctx, info); err != nil {
		return fmt.Errorf("failed to store image info: %w", err)
	}

	logger.Infof(ctx, "image %d (%dx%d) will generate %d tiles with %d px padding",
		info.ID, width, height, len(tiles), c.padding)

	var queuedBytes uint64
	for tileID, tile := range tiles {
		job := c.tileJob(info.ID, tileID, pix, width, height, tile)
		if _, err := c.queue.AddJob(ctx, job); err != nil {
			return fmt.Errorf("failed to queue tile %d: %w", tileID, err)
		}
		queuedBytes += uint64(len(job.ImageTile.Pixels))
	}

	logger.Infof(ctx, "finished queuing image %d (%s of tiles) in %.2fs",
		info.ID, humanize.Bytes(queuedBytes), time.Since(startTime).Seconds())
	return nil
}

func (c *Coordinator) tileJob(imageID, tileID int, pix []blur.Pixel, width, height int, tile image.Rectangle) *common.JobMessage {
	padded := blur.PaddedBounds(width, height, tile, c.padding)
	return &common.JobMessage{
		Type: common.JobTypeTile,
		ImageTile: &common.ImageTile{
			ImageID:   imageID,
			TileID:    tileID,
			X:         tile.Min.X,
			Y:         tile.Min.Y,
			Width:     tile.Dx(),
			Height:    tile.Dy(),
			PadX:      padded.Min.X,
			PadY:      padded.Min.Y,
			PadWidth:  padded.Dx(),
			PadHeight: padded.Dy(),
			Sigma:     c.sigma,
			Pixels:    codec.PackPixels(blur.ExtractRegion(pix, width, padded)),
		},
	}
}

// ProcessImages queues every image concurrently and returns how many
// were queued. Image IDs are firstID, firstID+1 and so on in the order of
// imagePaths.
func (c *Coordinator) ProcessImages(ctx context.Context, imagePaths []string, outputDir, ext string, firstID int) (int, error) {
	var (
		wg   sync.WaitGroup
		errs = make([]error, len(imagePaths))
	)

	for i, inputPath := range imagePaths {
		wg.Add(1)
		go func() {
			defer wg.Done()

			id := firstID + i
			outputPath := imageio.BlurredPath(inputPath, outputDir, ext)
			if err := c.ProcessImage(ctx, id, inputPath, outputPath); err != nil {
				errs[i] = fmt.Errorf("image %d: %w", id, err)
			}
		}()
	}
	wg.Wait()

	queued := 0
	for _, err := range errs {
		if err == nil {
			queued++
		}
	}
	return queued, errors.Join(errs...)
}
