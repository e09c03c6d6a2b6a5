// Package processor runs blur workers that consume tile jobs and publish
// the blurred tiles.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"go-blur/pkg/blur"
	"go-blur/pkg/codec"
	"go-blur/pkg/common"
	"go-blur/pkg/logger"
	"go-blur/pkg/queue"
)

// ErrBadJob marks a tile job that fails the same way on every attempt.
// Such jobs are acknowledged and dropped instead of being retried.
var ErrBadJob = errors.New("unprocessable job")

// JobQueue is the part of the queue a worker pool consumes from and
// publishes to.
type JobQueue interface {
	ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error)
	AckJob(ctx context.Context, id string) error
	AddResult(ctx context.Context, res *common.ResultMessage) (string, error)
	ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]queue.ClaimedJob, error)
}

type Options struct {
	// ReadBlock is how long a worker waits for a job per read.
	ReadBlock time.Duration
	// RetryInterval is how often pending jobs are checked for staleness.
	RetryInterval time.Duration
	// StaleAfter is the idle time after which a pending job is reclaimed.
	StaleAfter time.Duration
	// ClaimBatch caps the jobs reclaimed per check.
	ClaimBatch int
}

func DefaultOptions() Options {
	return Options{
		ReadBlock:     5 * time.Second,
		RetryInterval: 30 * time.Second,
		StaleAfter:    30 * time.Second,
		ClaimBatch:    50,
	}
}

type WorkerPool struct {
	queue      JobQueue
	numWorkers int
	workerID   string
	opts       Options

	tilesProcessed atomic.Int64
	tilesFailed    atomic.Int64
}

func NewWorkerPool(queue JobQueue, numWorkers int, workerID string, opts Options) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		queue:      queue,
		numWorkers: numWorkers,
		workerID:   workerID,
		opts:       opts,
	}
}

// Start runs the workers and the retry monitor until ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wp.worker(ctx, i)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		wp.retryMonitor(ctx)
	}()

	logger.Infof(ctx, "started %d workers", wp.numWorkers)
	wg.Wait()
	logger.Infof(ctx, "worker pool stopped after %d tiles (%d failed)",
		wp.tilesProcessed.Load(), wp.tilesFailed.Load())
}

// TilesProcessed reports how many tiles were blurred and acknowledged.
func (wp *WorkerPool) TilesProcessed() int64 {
	return wp.tilesProcessed.Load()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	consumer := fmt.Sprintf("%s-worker-%d", wp.workerID, id)
	ctx = logger.WithField(ctx, "consumer", consumer)
	logger.Debugf(ctx, "worker %d started", id)

	for ctx.Err() == nil {
		msgID, job, err := wp.queue.ReadJob(ctx, consumer, wp.opts.ReadBlock)
		if err != nil {
			if ctx.Err() == nil {
				logger.Errorf(ctx, "worker %d read error: %v", id, err)
			}
			continue
		}
		if job == nil {
			continue
		}
		wp.handle(ctx, msgID, job)
	}
	logger.Debugf(ctx, "worker %d shutting down", id)
}

// handle processes one job and acknowledges it on success. Failed jobs
// stay pending and are picked up again by the retry monitor, unless the
// failure is ErrBadJob.
func (wp *WorkerPool) handle(ctx context.Context, msgID string, job *common.JobMessage) {
	if job.Type != common.JobTypeTile || job.ImageTile == nil {
		logger.Warnf(ctx, "dropping job %s of type %q", msgID, job.Type)
		_ = wp.queue.AckJob(ctx, msgID)
		return
	}

	if err := wp.processTile(ctx, job.ImageTile); err != nil {
		wp.tilesFailed.Inc()
		if errors.Is(err, ErrBadJob) {
			logger.Warnf(ctx, "dropping job %s: %v", msgID, err)
			_ = wp.queue.AckJob(ctx, msgID)
			return
		}
		logger.Errorf(ctx, "failed to process tile %d of image %d: %v",
			job.ImageTile.TileID, job.ImageTile.ImageID, err)
		return
	}

	if err := wp.queue.AckJob(ctx, msgID); err != nil {
		logger.Warnf(ctx, "failed to ack job %s: %v", msgID, err)
	}
	if count := wp.tilesProcessed.Inc(); count%100 == 0 {
		logger.Infof(ctx, "processed %d tiles total", count)
	}
}

// processTile blurs the padded tile, crops it to the tile proper and
// publishes the result.
func (wp *WorkerPool) processTile(ctx context.Context, tile *common.ImageTile) error {
	startTime := time.Now()

	padded := tile.PaddedBounds()
	pix, err := codec.UnpackPixels(tile.Pixels, padded.Dx()*padded.Dy())
	if err != nil {
		return fmt.Errorf("%w: unable to unpack tile: %w", ErrBadJob, err)
	}

	if err := blur.Gaussian(pix, padded.Dx(), padded.Dy(), tile.Sigma); err != nil {
		return fmt.Errorf("%w: unable to blur tile: %w", ErrBadJob, err)
	}

	bounds := tile.Bounds()
	result := &common.ResultMessage{
		ProcessedTile: &common.ProcessedImageTile{
			ImageID: tile.ImageID,
			TileID:  tile.TileID,
			X:       tile.X,
			Y:       tile.Y,
			Width:   tile.Width,
			Height:  tile.Height,
			Pixels:  codec.PackPixels(blur.ExtractCenter(pix, padded, bounds)),
		},
		WorkerID:    wp.workerID,
		ProcessTime: time.Since(startTime).Seconds(),
	}

	if _, err := wp.queue.AddResult(ctx, result); err != nil {
		return fmt.Errorf("failed to add result: %w", err)
	}
	return nil
}

func (wp *WorkerPool) retryMonitor(ctx context.Context) {
	ticker := time.NewTicker(wp.opts.RetryInterval)
	defer ticker.Stop()

	consumer := fmt.Sprintf("%s-retry-monitor", wp.workerID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, err := wp.queue.ClaimStaleJobs(ctx, consumer, wp.opts.StaleAfter, wp.opts.ClaimBatch)
			if err != nil {
				if ctx.Err() == nil {
					logger.Errorf(ctx, "failed to claim stale jobs: %v", err)
				}
				continue
			}

			if len(claimed) > 0 {
				logger.Infof(ctx, "claimed %d stale jobs for retry", len(claimed))
			}
			for _, c := range claimed {
				wp.handle(ctx, c.ID, c.Job)
			}
		}
	}
}
