// Package config loads the scan settings: defaults in code, overridden by an optional YAML file,
// overridden in turn by command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"FlagSift/pkg/box"
	"FlagSift/pkg/scanner"
	"FlagSift/pkg/transform"
)

// DefaultMaxFileSize caps the bytes read into memory for one file
const DefaultMaxFileSize = 512 * 1024 * 1024

// WalkConfig controls the box walker
type WalkConfig struct {
	Containers []string `yaml:"containers"`
	// Clamp keeps a box whose size overruns the buffer instead of stopping at it.
	Clamp    bool `yaml:"clamp"`
	MaxDepth int  `yaml:"maxDepth"`
}

// Config is the full set of scan settings
type Config struct {
	LogLevel    string           `yaml:"logLevel"`
	MaxFileSize int64            `yaml:"maxFileSize"`
	Walk        WalkConfig       `yaml:"walk"`
	Scanner     scanner.Config   `yaml:"scanner"`
	Transforms  []transform.Spec `yaml:"transforms"`
	// TailBytes is how much of the end of a file the raw analyzer scans on its own.
	TailBytes int `yaml:"tailBytes"`
}

// Default returns the built-in settings
func Default() Config {
	containers := make([]string, 0, len(box.DefaultContainers))
	for _, t := range box.DefaultContainers {
		containers = append(containers, t.String())
	}
	return Config{
		LogLevel:    "info",
		MaxFileSize: DefaultMaxFileSize,
		Walk: WalkConfig{
			Containers: containers,
			MaxDepth:   box.DefaultMaxDepth,
		},
		Scanner:    scanner.DefaultConfig(),
		Transforms: transform.DefaultSpecs(),
		TailBytes:  5000,
	}
}

// Load reads the YAML file at path over the defaults. An empty file keeps the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that cannot be repaired with a default
func (c Config) Validate() error {
	var errs []error
	for _, name := range c.Walk.Containers {
		if len(name) != 4 {
			errs = append(errs, fmt.Errorf("container type %q is not 4 bytes", name))
		}
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, errors.New("maxFileSize must not be negative"))
	}
	if c.Scanner.MinStringLength < 0 {
		errs = append(errs, errors.New("scanner.minStringLength must not be negative"))
	}
	if _, err := transform.NewPipeline(transform.DefaultRegistry(), c.Transforms); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BoxOptions converts the walk settings for the box package. No containers means the defaults.
func (c Config) BoxOptions() box.Options {
	var containers []box.BoxType
	for _, name := range c.Walk.Containers {
		containers = append(containers, box.NewBoxType(name))
	}
	opts := box.Options{
		Containers: containers,
		MaxDepth:   c.Walk.MaxDepth,
	}
	if c.Walk.Clamp {
		opts.Overrun = box.OverrunClamp
	}
	return opts
}
