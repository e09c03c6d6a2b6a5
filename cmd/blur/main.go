package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"go-blur/pkg/blur"
	"go-blur/pkg/imageio"
	"go-blur/pkg/logger"
	"go-blur/pkg/stats"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	input := pflag.String("input", "data/input", "an image file or a directory of images")
	outputDir := pflag.String("output", "data/output", "directory to write blurred images to")
	sigma := pflag.Float64("sigma", 10, "standard deviation of the Gaussian")
	workers := pflag.Int("workers", 0, "goroutines per pass; 0 uses every CPU, 1 runs sequentially")
	format := pflag.String("format", "", "output file extension; empty keeps the input's")
	statsDir := pflag.String("stats-dir", "logs", "directory for the performance report; empty disables it")
	pflag.Parse()

	l := logger.New(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	defer logger.Flush(ctx)

	if err := blur.ValidateSigma(*sigma); err != nil {
		l.Fatal(err)
	}
	if *workers <= 0 {
		*workers = runtime.NumCPU()
	}

	inputPaths, err := inputImages(*input)
	if err != nil {
		l.Fatal(err)
	}
	if len(inputPaths) == 0 {
		l.Fatalf("no images found in %s", *input)
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		l.Fatalf("failed to create output directory: %v", err)
	}

	result := run(ctx, inputPaths, *outputDir, *format, *sigma, *workers)

	if *statsDir != "" {
		path, err := stats.WritePerformanceResults(*statsDir, []stats.PerformanceData{result})
		if err != nil {
			l.Fatalf("failed to write performance results: %v", err)
		}
		l.Infof("results written to %s", path)
	}
}

func inputImages(input string) ([]string, error) {
	fi, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{input}, nil
	}
	return imageio.FindImages(input)
}

func run(ctx context.Context, inputPaths []string, outputDir, format string, sigma float64, workers int) stats.PerformanceData {
	algorithm := "Parallel"
	if workers == 1 {
		algorithm = "Sequential"
	}
	radii := blur.BoxRadii(sigma)
	logger.Infof(ctx, "%s blur of %d images, sigma %g (box radii %v), %d workers",
		algorithm, len(inputPaths), sigma, radii, workers)

	startTime := time.Now()
	var (
		totalBlurTime float64
		totalPixels   int64
		outputPaths   []string
	)

	for i, inputPath := range inputPaths {
		ctx := logger.WithField(ctx, "image", inputPath)

		pix, width, height, err := imageio.Load(inputPath)
		if err != nil {
			logger.Errorf(ctx, "failed to load image %d: %v", i+1, err)
			continue
		}

		blurStart := time.Now()
		if err := blur.GaussianParallel(pix, width, height, sigma, workers); err != nil {
			logger.Errorf(ctx, "failed to blur image %d: %v", i+1, err)
			continue
		}
		blurTime := time.Since(blurStart).Seconds()

		outputPath := imageio.BlurredPath(inputPath, outputDir, format)
		if err := imageio.Save(outputPath, pix, width, height); err != nil {
			logger.Errorf(ctx, "failed to save image %d: %v", i+1, err)
			continue
		}

		totalBlurTime += blurTime
		totalPixels += int64(width * height)
		outputPaths = append(outputPaths, outputPath)
		logger.Infof(ctx, "image %d (%dx%d) blurred in %.3fs -> %s", i+1, width, height, blurTime, outputPath)
	}

	totalTime := time.Since(startTime).Seconds()
	var averageTime float64
	if len(outputPaths) > 0 {
		averageTime = totalTime / float64(len(outputPaths))
	}
	logger.Infof(ctx, "%d/%d images in %.2fs", len(outputPaths), len(inputPaths), totalTime)

	return stats.PerformanceData{
		AlgorithmName:   algorithm,
		ImagesProcessed: len(outputPaths),
		Sigma:           sigma,
		Radii:           radii,
		TotalPixels:     totalPixels,
		TotalTime:       totalTime,
		AverageTime:     averageTime,
		InputPaths:      inputPaths,
		OutputPaths:     outputPaths,
		Timestamp:       startTime,
		TotalBlurTime:   &totalBlurTime,
		Workers:         &workers,
	}
}
