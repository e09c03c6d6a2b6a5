// Package assembler collects blurred tiles and writes each image once
// all of its tiles have arrived.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/atomic"

	"go-blur/pkg/blur"
	"go-blur/pkg/codec"
	"go-blur/pkg/common"
	"go-blur/pkg/imageio"
	"go-blur/pkg/logger"
)

// ErrBadTile marks a result that can never be assembled. Such results
// are acknowledged and dropped.
var ErrBadTile = errors.New("malformed tile")

// ErrSaveFailed marks a fully received image whose output could not be
// written. The tiles stay in memory, so the result is acknowledged and
// the save is retried by redelivered tiles and on every checkpoint.
var ErrSaveFailed = errors.New("unable to save image")

// ResultQueue is the part of the queue the assembler consumes from.
type ResultQueue interface {
	ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error)
	AckResult(ctx context.Context, id string) error
	GetImageInfo(ctx context.Context, imageID int) (*common.ImageInfo, error)
	MarkImageCompleted(ctx context.Context, imageID int) error
	IsImageCompleted(ctx context.Context, imageID int) (bool, error)
}

type Options struct {
	ReadBlock          time.Duration
	CheckpointInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadBlock:          5 * time.Second,
		CheckpointInterval: 10 * time.Second,
	}
}

type Assembler struct {
	queue       ResultQueue
	assemblerID string
	opts        Options

	imageMap map[int]*ImageAssembly
	mutex    sync.RWMutex

	imagesCompleted atomic.Int64
}

type ImageAssembly struct {
	info           *common.ImageInfo
	pixels         []blur.Pixel
	tilesReceived  int
	processedTiles map[int]bool
	completed      bool
	mutex          sync.Mutex
}

func NewAssembler(queue ResultQueue, assemblerID string, opts Options) *Assembler {
	return &Assembler{
		queue:       queue,
		assemblerID: assemblerID,
		opts:        opts,
		imageMap:    make(map[int]*ImageAssembly),
	}
}

// Start consumes results until ctx is done.
func (a *Assembler) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.resultProcessor(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.checkpointMonitor(ctx)
	}()

	logger.Infof(ctx, "assembler %s started", a.assemblerID)
	wg.Wait()
	logger.Infof(ctx, "assembler %s stopped after %d images", a.assemblerID, a.imagesCompleted.Load())
}

// ImagesCompleted reports how many images this assembler has written.
func (a *Assembler) ImagesCompleted() int64 {
	return a.imagesCompleted.Load()
}

func (a *Assembler) resultProcessor(ctx context.Context) {
	consumer := fmt.Sprintf("assembler-%s", a.assemblerID)

	for ctx.Err() == nil {
		msgID, result, err := a.queue.ReadResult(ctx, consumer, a.opts.ReadBlock)
		if err != nil {
			if ctx.Err() == nil {
				logger.Errorf(ctx, "assembler read error: %v", err)
			}
			continue
		}
		if result == nil {
			continue
		}
		if result.ProcessedTile == nil {
			_ = a.queue.AckResult(ctx, msgID)
			continue
		}

		err = a.processTile(ctx, result.ProcessedTile)
		switch {
		case errors.Is(err, ErrBadTile):
			logger.Warnf(ctx, "dropping result %s: %v", msgID, err)
			_ = a.queue.AckResult(ctx, msgID)
		case errors.Is(err, ErrSaveFailed):
			logger.Errorf(ctx, "%v, will retry", err)
			_ = a.queue.AckResult(ctx, msgID)
		case err != nil:
			logger.Errorf(ctx, "failed to process tile: %v", err)
		default:
			_ = a.queue.AckResult(ctx, msgID)
		}
	}
}

func (a *Assembler) processTile(ctx context.Context, tile *common.ProcessedImageTile) error {
	assembly, err := a.getOrCreateAssembly(ctx, tile.ImageID)
	if err != nil {
		return fmt.Errorf("failed to get assembly: %w", err)
	}

	assembly.mutex.Lock()
	defer assembly.mutex.Unlock()

	if assembly.completed {
		return nil
	}

	if assembly.processedTiles[tile.TileID] {
		logger.Debugf(ctx, "tile %d for image %d already processed", tile.TileID, tile.ImageID)
		// the image may be full but still unsaved
		return a.finish(ctx, assembly)
	}

	bounds := tile.Bounds()
	imageRect := image.Rect(0, 0, assembly.info.Width, assembly.info.Height)
	if bounds.Empty() || !bounds.In(imageRect) {
		return fmt.Errorf("%w: tile %d at %v outside image %d %v", ErrBadTile, tile.TileID, bounds, tile.ImageID, imageRect)
	}
	pix, err := codec.UnpackPixels(tile.Pixels, bounds.Dx()*bounds.Dy())
	if err != nil {
		return fmt.Errorf("%w: tile %d of image %d: %v", ErrBadTile, tile.TileID, tile.ImageID, err)
	}

	blur.PasteRegion(assembly.pixels, assembly.info.Width, bounds, pix)
	assembly.processedTiles[tile.TileID] = true
	assembly.tilesReceived++

	if assembly.tilesReceived < assembly.info.ExpectedTiles {
		if assembly.tilesReceived%10 == 0 {
			logger.Infof(ctx, "image %d progress: %d/%d tiles",
				tile.ImageID, assembly.tilesReceived, assembly.info.ExpectedTiles)
		}
		return nil
	}

	return a.finish(ctx, assembly)
}

// finish writes an image once all of its tiles are in. The caller holds
// assembly.mutex. On failure the pixels are kept for the next attempt.
func (a *Assembler) finish(ctx context.Context, assembly *ImageAssembly) error {
	info := assembly.info
	if assembly.completed || assembly.tilesReceived < info.ExpectedTiles {
		return nil
	}

	if err := imageio.Save(info.OutputPath, assembly.pixels, info.Width, info.Height); err != nil {
		return fmt.Errorf("%w %d: %w", ErrSaveFailed, info.ID, err)
	}
	assembly.completed = true
	assembly.pixels = nil
	a.imagesCompleted.Inc()

	if err := a.queue.MarkImageCompleted(ctx, info.ID); err != nil {
		logger.Warnf(ctx, "failed to mark image %d as completed: %v", info.ID, err)
	}

	logger.Infof(ctx, "image %d assembled: %d tiles in %.2fs, written to %s",
		info.ID, assembly.tilesReceived, time.Since(info.StartTime).Seconds(), info.OutputPath)
	return nil
}

func (a *Assembler) getOrCreateAssembly(ctx context.Context, imageID int) (*ImageAssembly, error) {
	a.mutex.RLock()
	if assembly, exists := a.imageMap[imageID]; exists {
		a.mutex.RUnlock()
		return assembly, nil
	}
	a.mutex.RUnlock()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if assembly, exists := a.imageMap[imageID]; exists {
		return assembly, nil
	}

	info, err := a.queue.GetImageInfo(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get image info: %w", err)
	}

	// A restarted assembler may see late duplicates of an image that is
	// already written.
	done, err := a.queue.IsImageCompleted(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get image status: %w", err)
	}

	assembly := &ImageAssembly{
		info:           info,
		processedTiles: make(map[int]bool),
		completed:      done,
	}
	if !done {
		assembly.pixels = make([]blur.Pixel, info.Width*info.Height)
	}
	a.imageMap[imageID] = assembly

	logger.Debugf(ctx, "created assembly for image %d (%dx%d, %d tiles expected)",
		imageID, info.Width, info.Height, info.ExpectedTiles)
	return assembly, nil
}

func (a *Assembler) checkpointMonitor(ctx context.Context) {
	ticker := time.NewTicker(a.opts.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.checkpoint(ctx)
		}
	}
}

// checkpoint retries pending saves and logs progress of unfinished images.
func (a *Assembler) checkpoint(ctx context.Context) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var incompleteCount int
	for _, assembly := range a.imageMap {
		assembly.mutex.Lock()
		if err := a.finish(ctx, assembly); err != nil {
			logger.Errorf(ctx, "%v, will retry", err)
		}
		if !assembly.completed {
			incompleteCount++
			logger.Infof(ctx, "image %d progress: %d/%d tiles received",
				assembly.info.ID, assembly.tilesReceived, assembly.info.ExpectedTiles)
		}
		assembly.mutex.Unlock()
	}

	if len(a.imageMap) > 0 {
		logger.Infof(ctx, "assembler status: %d active images, %d incomplete",
			len(a.imageMap), incompleteCount)
	}
}
