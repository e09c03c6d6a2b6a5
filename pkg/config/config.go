// Package config provides configuration loading for the blur service.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag, or
//   - the BLUR_CONFIG environment variable.
//
// Without either, Default is used. Command-line flags that were set
// explicitly override file values; that merge happens in the command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"go-blur/pkg/blur"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "BLUR_CONFIG"

// Mode selects which service components run in a process.
type Mode string

const (
	ModeCoordinator Mode = "coordinator"
	ModeWorker      Mode = "worker"
	ModeAssembler   Mode = "assembler"
	ModeAll         Mode = "all"
)

// Config is the configuration of the blur service.
type Config struct {
	// Mode is one of coordinator, worker, assembler or all.
	Mode Mode `yaml:"mode"`

	// Redis is the address of the Redis server. Empty runs the pipeline
	// on an in-process queue, which only works in mode all.
	Redis string `yaml:"redis"`

	// Input is the directory scanned for images.
	Input string `yaml:"input"`

	// Output is the directory blurred images are written to.
	Output string `yaml:"output"`

	// Format is the output file extension. Empty keeps the input's.
	Format string `yaml:"format"`

	// LogLevel is one of trace, debug, info, warning, error, fatal.
	LogLevel string `yaml:"log_level"`

	Blur      BlurConfig      `yaml:"blur"`
	Worker    WorkerConfig    `yaml:"worker"`
	Assembler AssemblerConfig `yaml:"assembler"`
}

// BlurConfig configures the blur itself.
type BlurConfig struct {
	// Sigma is the standard deviation of the approximated Gaussian.
	Sigma float64 `yaml:"sigma"`

	// TileSize is the edge length of the tiles an image is split into.
	TileSize int `yaml:"tile_size"`
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	// Count is the number of worker goroutines.
	Count int `yaml:"count"`

	// ReadBlock is how long a worker waits for a job per read.
	ReadBlock time.Duration `yaml:"read_block"`

	// RetryInterval is how often stale jobs are looked for.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// StaleAfter is how long a job may stay unacknowledged before
	// another worker takes it over.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// AssemblerConfig configures the assembler.
type AssemblerConfig struct {
	ReadBlock          time.Duration `yaml:"read_block"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// Default returns the default configuration. Loaded files are merged
// over it.
func Default() *Config {
	return &Config{
		Mode:     ModeAll,
		Redis:    "localhost:6379",
		Input:    "/data/input",
		Output:   "/data/output",
		LogLevel: "info",
		Blur: BlurConfig{
			Sigma:    10,
			TileSize: 256,
		},
		Worker: WorkerConfig{
			Count:         10,
			ReadBlock:     5 * time.Second,
			RetryInterval: 30 * time.Second,
			StaleAfter:    30 * time.Second,
		},
		Assembler: AssemblerConfig{
			ReadBlock:          5 * time.Second,
			CheckpointInterval: 10 * time.Second,
		},
	}
}

// Load loads the configuration from path, or from the file named by
// BLUR_CONFIG when path is empty. With neither it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
// ${VAR} references in paths are expanded from the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.Input = os.ExpandEnv(cfg.Input)
	cfg.Output = os.ExpandEnv(cfg.Output)
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeCoordinator, ModeWorker, ModeAssembler, ModeAll:
	default:
		errs = append(errs, fmt.Errorf("invalid mode: %q", c.Mode))
	}
	if c.Redis == "" && c.Mode != ModeAll {
		errs = append(errs, fmt.Errorf("redis is required in mode %s", c.Mode))
	}
	if c.Mode != ModeWorker && c.Mode != ModeAssembler && c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if c.Mode != ModeWorker && c.Mode != ModeCoordinator && c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}

	if err := blur.ValidateSigma(c.Blur.Sigma); err != nil {
		errs = append(errs, fmt.Errorf("blur.sigma: %w", err))
	}
	if c.Blur.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("blur.tile_size must be positive, got %d", c.Blur.TileSize))
	}

	if c.Worker.Count <= 0 {
		errs = append(errs, fmt.Errorf("worker.count must be positive, got %d", c.Worker.Count))
	}
	for name, d := range map[string]time.Duration{
		"worker.read_block":             c.Worker.ReadBlock,
		"worker.retry_interval":         c.Worker.RetryInterval,
		"worker.stale_after":            c.Worker.StaleAfter,
		"assembler.read_block":          c.Assembler.ReadBlock,
		"assembler.checkpoint_interval": c.Assembler.CheckpointInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}

	return errors.Join(errs...)
}
