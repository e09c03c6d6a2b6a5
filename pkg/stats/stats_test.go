package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleResult() PerformanceData {
	blurTime := 2.0
	workers := 8
	return PerformanceData{
		AlgorithmName:   "Parallel",
		ImagesProcessed: 2,
		Sigma:           10,
		Radii:           []int{10, 10, 10},
		TotalPixels:     4_000_000,
		TotalTime:       2.5,
		AverageTime:     1.25,
		InputPaths:      []string{"in/a.png", "in/b.png"},
		OutputPaths:     []string{"out/a_blurred.png", "out/b_blurred.png"},
		Timestamp:       time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		TotalBlurTime:   &blurTime,
		Workers:         &workers,
	}
}

func TestWritePerformanceResults(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	path, err := WritePerformanceResults(dir, []PerformanceData{sampleResult()})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "blur_2024-05-06_07-08-09.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)

	for _, line := range []string{
		"Timestamp: 2024-05-06 07:08:09\n",
		"=== Parallel Results ===\n",
		"Sigma: 10\n",
		"Box radii: [10 10 10]\n",
		"Total pixels: 4,000,000\n",
		"Total blur time: 2.00s\n",
		"Workers: 8\n",
		"  2. out/b_blurred.png\n",
	} {
		require.Contains(t, report, line)
	}
	require.Regexp(t, `Throughput: 2(\.0)? Mpx/s\n`, report)
	require.NotContains(t, report, "Tile size")
}

func TestWritePerformanceResultsEmpty(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	path, err := WritePerformanceResults(dir, nil)
	require.NoError(t, err)
	require.Empty(t, path)
	require.NoDirExists(t, dir)
}
