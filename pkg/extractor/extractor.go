package extractor

import (
	"context"
	"image"
	"log/slog"

	"FlagSift/pkg/models"
)

// ExtractionOptions contains configuration for extraction process
type ExtractionOptions struct {
	// OutputDir receives extracted data when Save is set
	OutputDir string
	Save      bool
	// Prefix starts every saved file name, usually the source file name
	Prefix string
	// MaxBytes caps the data pulled out by one strategy, 0 means the extractor default
	MaxBytes int
	Verbose  bool
	Logger   *slog.Logger
}

// DataExtractor is the interface that all extractors must implement
type DataExtractor interface {
	// CanExtract checks if this extractor can handle the given format
	CanExtract(format string) bool

	// Extract pulls every candidate hidden stream out of a file, best scored first
	Extract(ctx context.Context, filePath string, options ExtractionOptions) ([]*models.ExtractionResult, error)

	// Name returns the name of the extractor
	Name() string

	// SupportedFormats returns formats this extractor supports
	SupportedFormats() []string

	// SupportedAlgorithms returns the extraction strategies this extractor runs
	SupportedAlgorithms() []string
}

// ImageExtractor is an interface for extractors that work with image files
type ImageExtractor interface {
	DataExtractor

	// ExtractFromImage extracts data directly from an image object
	ExtractFromImage(ctx context.Context, img image.Image, options ExtractionOptions) ([]*models.ExtractionResult, error)
}

// BufferExtractor is implemented by extractors that work on a file already read into memory.
// Analyzers run them on every file and scan what they return.
type BufferExtractor interface {
	DataExtractor

	// ExtractFromBuffer pulls candidates out of buf
	ExtractFromBuffer(ctx context.Context, buf []byte, options ExtractionOptions) ([]*models.ExtractionResult, error)
}

// BaseExtractor provides common functionality for extractors
type BaseExtractor struct {
	name       string
	formats    []string
	algorithms []string
}

// NewBaseExtractor creates a new BaseExtractor
func NewBaseExtractor(name string, formats []string, algorithms []string) BaseExtractor {
	return BaseExtractor{
		name:       name,
		formats:    formats,
		algorithms: algorithms,
	}
}

// Name returns the extractor name
func (b *BaseExtractor) Name() string {
	return b.name
}

// SupportedFormats returns the supported formats
func (b *BaseExtractor) SupportedFormats() []string {
	return b.formats
}

// SupportedAlgorithms returns the supported algorithms
func (b *BaseExtractor) SupportedAlgorithms() []string {
	return b.algorithms
}

// CanExtract checks if the extractor supports the given format
func (b *BaseExtractor) CanExtract(format string) bool {
	for _, f := range b.formats {
		if f == format || f == AnyFormat {
			return true
		}
	}
	return false
}
