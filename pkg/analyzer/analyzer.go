package analyzer

import (
	"context"
	"image"
	"log/slog"

	"FlagSift/pkg/config"
	"FlagSift/pkg/extractor"
	"FlagSift/pkg/models"
	"FlagSift/pkg/scanner"
	"FlagSift/pkg/transform"
)

/*
Analyzers turn one file into one models.AnalysisResult.
FileAnalyzer is implemented by every analyzer and registered per format in a Registry.
ImageAnalyzer adds AnalyzeImage for analyzers that work on decoded pixels.
AnalysisOptions carries the loaded config plus the scanner and transform pipeline compiled from it,
so a directory scan compiles them once.
*/

// AnalysisOptions holds configuration options for analysis
type AnalysisOptions struct {
	Verbose bool
	Format  string
	Extract bool
	// OutputDir receives extracted data when Extract is set
	OutputDir string

	Config     config.Config
	Scanner    *scanner.Scanner
	Pipeline   *transform.Pipeline
	Extractors *extractor.Registry
	Logger     *slog.Logger
}

// NewOptions compiles the scanner and transform pipeline of cfg
func NewOptions(cfg config.Config, logger *slog.Logger) (AnalysisOptions, error) {
	pipeline, err := transform.NewPipeline(transform.DefaultRegistry(), cfg.Transforms)
	if err != nil {
		return AnalysisOptions{}, err
	}
	return AnalysisOptions{
		Config:   cfg,
		Scanner:  scanner.New(cfg.Scanner),
		Pipeline: pipeline,
		Logger:   logger,
	}, nil
}

// FileAnalyzer is the interface that all file analyzers must implement
type FileAnalyzer interface {
	// CanAnalyze checks if this analyzer can handle the given format
	CanAnalyze(format string) bool

	// Analyze performs analysis on a file and returns results
	Analyze(ctx context.Context, filePath string, options AnalysisOptions) (*models.AnalysisResult, error)

	// Name returns the name of the analyzer
	Name() string

	// Description returns a detailed description of what the analyzer does
	Description() string

	// SupportedFormats returns a list of file formats this analyzer supports
	SupportedFormats() []string
}

// ImageAnalyzer is an interface for analyzers that work with image files
type ImageAnalyzer interface {
	FileAnalyzer

	// AnalyzeImage performs analysis directly on an image object
	AnalyzeImage(ctx context.Context, img image.Image, options AnalysisOptions) (*models.AnalysisResult, error)
}

// BaseAnalyzer provides common functionality for analyzers
type BaseAnalyzer struct {
	name        string
	description string
	formats     []string
}

// NewBaseAnalyzer creates a new BaseAnalyzer
func NewBaseAnalyzer(name, description string, formats []string) BaseAnalyzer {
	return BaseAnalyzer{
		name:        name,
		description: description,
		formats:     formats,
	}
}

// Name returns the analyzer name
func (b *BaseAnalyzer) Name() string {
	return b.name
}

// Description returns the analyzer description
func (b *BaseAnalyzer) Description() string {
	return b.description
}

// SupportedFormats returns the supported formats
func (b *BaseAnalyzer) SupportedFormats() []string {
	return b.formats
}

// CanAnalyze checks if the analyzer supports the given format
func (b *BaseAnalyzer) CanAnalyze(format string) bool {
	for _, f := range b.formats {
		if f == format {
			return true
		}
	}
	return false
}
