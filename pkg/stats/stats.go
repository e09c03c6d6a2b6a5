package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// PerformanceData holds timing and metadata for one blur run
type PerformanceData struct {
	AlgorithmName   string
	ImagesProcessed int
	Sigma           float64
	Radii           []int
	TotalPixels     int64
	TotalTime       float64
	AverageTime     float64
	InputPaths      []string
	OutputPaths     []string
	Timestamp       time.Time

	// Algorithm-specific data
	TotalBlurTime *float64 // time spent inside the blur itself
	Workers       *int     // For parallel and distributed runs
	TileSize      *int     // For distributed runs
}

// WritePerformanceResults writes a single combined results file to dir
// and returns its path.
func WritePerformanceResults(dir string, results []PerformanceData) (string, error) {
	return WritePerformanceResultsWithPrefix(dir, results, "blur_")
}

// WritePerformanceResultsWithPrefix writes results file with custom prefix
func WritePerformanceResultsWithPrefix(dir string, results []PerformanceData, prefix string) (_ string, _err error) {
	if len(results) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create stats directory: %w", err)
	}

	// Use timestamp from first result
	timestamp := results[0].Timestamp.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, prefix+timestamp+".txt")

	file, err := os.Create(resultsFile)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && _err == nil {
			_err = err
		}
	}()

	if err := WriteReport(file, results); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return resultsFile, nil
}

// WriteReport writes the human-readable report for results to w.
func WriteReport(w io.Writer, results []PerformanceData) error {
	ew := &errWriter{w: w}

	ew.printf("=== Gaussian Blur Results ===\n")
	if len(results) > 0 {
		ew.printf("Timestamp: %s\n", results[0].Timestamp.Format("2006-01-02 15:04:05"))
	}
	ew.printf("\n")

	for _, result := range results {
		ew.printf("=== %s Results ===\n", result.AlgorithmName)
		ew.printf("Images processed: %d\n", result.ImagesProcessed)
		ew.printf("Sigma: %g\n", result.Sigma)
		ew.printf("Box radii: %v\n", result.Radii)
		if result.TotalPixels > 0 {
			ew.printf("Total pixels: %s\n", humanize.Comma(result.TotalPixels))
		}

		if result.TotalBlurTime != nil {
			ew.printf("Total blur time: %.2fs\n", *result.TotalBlurTime)
			if *result.TotalBlurTime > 0 {
				ew.printf("Throughput: %s\n", humanize.SIWithDigits(float64(result.TotalPixels) / *result.TotalBlurTime, 1, "px/s"))
			}
		}

		ew.printf("Total execution time: %.2fs\n", result.TotalTime)
		ew.printf("Average time per image: %.2fs\n", result.AverageTime)

		if result.Workers != nil {
			ew.printf("Workers: %d\n", *result.Workers)
		}
		if result.TileSize != nil {
			ew.printf("Tile size: %d\n", *result.TileSize)
		}

		ew.printf("\nInput files:\n")
		for i, path := range result.InputPaths {
			ew.printf("  %d. %s\n", i+1, path)
		}

		ew.printf("\nOutput files:\n")
		for i, path := range result.OutputPaths {
			ew.printf("  %d. %s\n", i+1, path)
		}

		ew.printf("\n")
	}
	return ew.err
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
