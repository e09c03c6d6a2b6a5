package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"go-blur/pkg/assembler"
	"go-blur/pkg/blur"
	"go-blur/pkg/config"
	"go-blur/pkg/coordinator"
	"go-blur/pkg/imageio"
	"go-blur/pkg/logger"
	"go-blur/pkg/processor"
	"go-blur/pkg/queue"
	"go-blur/pkg/stats"
)

// serviceQueue is everything the three components need from a queue.
type serviceQueue interface {
	coordinator.JobQueue
	processor.JobQueue
	assembler.ResultQueue
	EnsureGroups(ctx context.Context) error
	Close() error
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	defaults := config.Default()
	configPath := pflag.String("config", "", "path to a YAML config file (default $"+config.EnvVar+")")
	mode := pflag.String("mode", string(defaults.Mode), "coordinator, worker, assembler, or all")
	redisAddr := pflag.String("redis", defaults.Redis, "Redis address; empty runs mode all on an in-process queue")
	inputDir := pflag.String("input", defaults.Input, "input directory")
	outputDir := pflag.String("output", defaults.Output, "output directory")
	format := pflag.String("format", defaults.Format, "output file extension; empty keeps the input's")
	sigma := pflag.Float64("sigma", defaults.Blur.Sigma, "standard deviation of the Gaussian")
	numWorkers := pflag.Int("workers", defaults.Worker.Count, "number of worker goroutines")
	tileSize := pflag.Int("tile-size", defaults.Blur.TileSize, "tile edge length in pixels")
	statsDir := pflag.String("stats-dir", "logs", "directory for the performance report in mode all; empty disables it")
	logLevel := pflag.String("log-level", defaults.LogLevel, "log level")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(logger.LevelInfo).Fatal(err)
	}

	// explicitly set flags win over the file
	flags := pflag.CommandLine
	if flags.Changed("mode") {
		cfg.Mode = config.Mode(*mode)
	}
	if flags.Changed("redis") {
		cfg.Redis = *redisAddr
	}
	if flags.Changed("input") {
		cfg.Input = *inputDir
	}
	if flags.Changed("output") {
		cfg.Output = *outputDir
	}
	if flags.Changed("format") {
		cfg.Format = *format
	}
	if flags.Changed("sigma") {
		cfg.Blur.Sigma = *sigma
	}
	if flags.Changed("workers") {
		cfg.Worker.Count = *numWorkers
	}
	if flags.Changed("tile-size") {
		cfg.Blur.TileSize = *tileSize
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	loggerLevel := logger.LevelInfo
	if err := loggerLevel.Set(cfg.LogLevel); err != nil {
		logger.New(logger.LevelInfo).Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	l := logger.New(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	defer logger.Flush(ctx)

	if err := cfg.Validate(); err != nil {
		l.Fatal(err)
	}

	hostname, _ := os.Hostname()
	serviceID := fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
	ctx = logger.WithField(ctx, "service_id", serviceID)

	logger.Infof(ctx, "starting blur service in mode %s", cfg.Mode)
	logger.Infof(ctx, "redis: %q, workers: %d, sigma: %g (box radii %v), tile size: %d",
		cfg.Redis, cfg.Worker.Count, cfg.Blur.Sigma, blur.BoxRadii(cfg.Blur.Sigma), cfg.Blur.TileSize)

	q, err := openQueue(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf("failed to open queue: %v", err)
	}
	defer q.Close()

	if err := q.EnsureGroups(ctx); err != nil {
		l.Fatalf("failed to ensure queue groups: %v", err)
	}

	if cfg.Mode != config.ModeWorker {
		if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
			l.Fatalf("failed to create output directory: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case config.ModeCoordinator:
		if _, _, err := runCoordinator(ctx, q, cfg); err != nil {
			l.Error(err)
		}

	case config.ModeWorker:
		newWorkerPool(q, cfg, serviceID).Start(ctx)

	case config.ModeAssembler:
		newAssembler(q, cfg, serviceID).Start(ctx)

	case config.ModeAll:
		runAll(ctx, q, cfg, serviceID, *statsDir)
	}

	logger.Infof(ctx, "service shutdown complete")
}

func openQueue(ctx context.Context, redisAddr string) (serviceQueue, error) {
	if redisAddr == "" {
		return queue.NewMemoryQueue(), nil
	}
	client, err := queue.NewRedisClient(ctx, redisAddr)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newWorkerPool(q serviceQueue, cfg *config.Config, serviceID string) *processor.WorkerPool {
	opts := processor.DefaultOptions()
	opts.ReadBlock = cfg.Worker.ReadBlock
	opts.RetryInterval = cfg.Worker.RetryInterval
	opts.StaleAfter = cfg.Worker.StaleAfter
	return processor.NewWorkerPool(q, cfg.Worker.Count, serviceID, opts)
}

func newAssembler(q serviceQueue, cfg *config.Config, serviceID string) *assembler.Assembler {
	return assembler.NewAssembler(q, serviceID, assembler.Options{
		ReadBlock:          cfg.Assembler.ReadBlock,
		CheckpointInterval: cfg.Assembler.CheckpointInterval,
	})
}

// runCoordinator queues every image in the input directory. It returns
// the images found and how many of them were queued.
func runCoordinator(ctx context.Context, q serviceQueue, cfg *config.Config) ([]string, int, error) {
	imagePaths, err := imageio.FindImages(cfg.Input)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", cfg.Input, err)
	}
	if len(imagePaths) == 0 {
		logger.Warnf(ctx, "no images found in %s", cfg.Input)
		return nil, 0, nil
	}

	logger.Infof(ctx, "coordinator: processing %d images", len(imagePaths))

	coord := coordinator.NewCoordinator(q, cfg.Blur.Sigma, cfg.Blur.TileSize)
	firstID := int(time.Now().Unix()) * 1000

	startTime := time.Now()
	queued, err := coord.ProcessImages(ctx, imagePaths, cfg.Output, cfg.Format, firstID)
	logger.Infof(ctx, "coordinator: %d/%d images queued in %.2fs",
		queued, len(imagePaths), time.Since(startTime).Seconds())
	if err != nil {
		return imagePaths, queued, fmt.Errorf("coordinator: %w", err)
	}
	return imagePaths, queued, nil
}

// runAll runs every component in this process. It returns once all
// queued images are assembled or ctx is done.
func runAll(ctx context.Context, q serviceQueue, cfg *config.Config, serviceID, statsDir string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerPool := newWorkerPool(q, cfg, serviceID)
	imageAssembler := newAssembler(q, cfg, serviceID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		workerPool.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		imageAssembler.Start(ctx)
	}()

	startTime := time.Now()
	imagePaths, queued, err := runCoordinator(ctx, q, cfg)
	if err != nil {
		logger.Errorf(ctx, "%v", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for imageAssembler.ImagesCompleted() < int64(queued) && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	completed := imageAssembler.ImagesCompleted()
	totalTime := time.Since(startTime).Seconds()
	logger.Infof(ctx, "shutting down all components after %d images", completed)
	cancel()
	wg.Wait()

	if statsDir == "" || completed == 0 {
		return
	}

	var outputPaths []string
	for _, path := range imagePaths {
		outputPaths = append(outputPaths, imageio.BlurredPath(path, cfg.Output, cfg.Format))
	}
	workers, tileSize := cfg.Worker.Count, cfg.Blur.TileSize
	path, err := stats.WritePerformanceResults(statsDir, []stats.PerformanceData{{
		AlgorithmName:   "Distributed",
		ImagesProcessed: int(completed),
		Sigma:           cfg.Blur.Sigma,
		Radii:           blur.BoxRadii(cfg.Blur.Sigma),
		TotalTime:       totalTime,
		AverageTime:     totalTime / float64(completed),
		InputPaths:      imagePaths,
		OutputPaths:     outputPaths,
		Timestamp:       startTime,
		Workers:         &workers,
		TileSize:        &tileSize,
	}})
	if err != nil {
		logger.Errorf(ctx, "failed to write performance results: %v", err)
		return
	}
	logger.Infof(ctx, "results written to %s", path)
}
