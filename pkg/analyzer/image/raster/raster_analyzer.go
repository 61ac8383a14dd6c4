package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"FlagSift/pkg/analyzer"
	"FlagSift/pkg/analyzer/image/lsb"
	"FlagSift/pkg/extractor"
	lsbextractor "FlagSift/pkg/extractor/image/lsb"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
)

/*
RasterAnalyzer handles still images.
- The file bytes are swept for flags, which covers text chunks, comments and appended data.
- The decoded pixels get the LSB distribution statistics.
- Every LSB extraction candidate is swept like a box payload, so a flag hidden in the low bits
  (plain or encoded) ends up in the matches.
- Universal extractors run on the file bytes, which catches archives appended after the image.
*/

// RasterAnalyzer implements analysis for still images
type RasterAnalyzer struct {
	analyzer.BaseAnalyzer
	fallback extractor.ImageExtractor
}

// NewRasterAnalyzer creates a new image analyzer
func NewRasterAnalyzer() *RasterAnalyzer {
	return &RasterAnalyzer{
		BaseAnalyzer: analyzer.NewBaseAnalyzer(
			"Image LSB Analyzer",
			"Checks LSB statistics and scans LSB extraction candidates of still images",
			[]string{filehandler.FormatPNG, filehandler.FormatJPEG, filehandler.FormatGIF,
				filehandler.FormatBMP, filehandler.FormatTIFF},
		),
		fallback: lsbextractor.NewLSBExtractor(),
	}
}

// Analyze performs analysis on an image file
func (a *RasterAnalyzer) Analyze(ctx context.Context, filePath string, options analyzer.AnalysisOptions) (*models.AnalysisResult, error) {
	start := time.Now()
	data, err := filehandler.ReadFileBytes(filePath, options.Config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	// decoder names match the filehandler format names
	options.Format = format

	result, err := a.analyzeImage(ctx, img, options, strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)))
	if err != nil {
		return nil, err
	}
	result.Filename = filePath

	s := options.ScannerOrDefault()
	for _, m := range analyzer.Sweep(s, options, "file", 0, 0, data) {
		if m.Kind == models.MatchKindFlag {
			result.AddMatches(m)
		}
	}
	if options.Extractors != nil {
		universal := options.Extractors.Universal()
		if err := analyzer.SweepExtracted(ctx, options, universal, data, result); err != nil {
			return nil, err
		}
		analyzer.ExtractFile(ctx, filePath, universal, universal, result, options)
	}
	return analyzer.Finish(result, start), nil
}

// AnalyzeImage analyzes a decoded image
func (a *RasterAnalyzer) AnalyzeImage(ctx context.Context, img image.Image, options analyzer.AnalysisOptions) (*models.AnalysisResult, error) {
	start := time.Now()
	result, err := a.analyzeImage(ctx, img, options, "")
	if err != nil {
		return nil, err
	}
	return analyzer.Finish(result, start), nil
}

func (a *RasterAnalyzer) analyzeImage(ctx context.Context, img image.Image, options analyzer.AnalysisOptions, prefix string) (*models.AnalysisResult, error) {
	if img == nil {
		return nil, errors.New("nil image provided")
	}
	log := logging.OrDiscard(options.Logger)
	result := models.NewAnalysisResult("", options.Format, a.Name())

	bounds := img.Bounds()
	result.Details["width"] = bounds.Dx()
	result.Details["height"] = bounds.Dy()

	stats, err := lsb.AnalyzeDistribution(img)
	if err != nil {
		return nil, fmt.Errorf("LSB analysis failed: %w", err)
	}
	result.Details["lsb_entropy"] = stats.Entropy
	result.Details["lsb_channels"] = stats.ChannelStats
	result.Confidence = stats.Confidence

	if stats.AnomalyScore > 0.8 {
		result.AddFinding("Highly anomalous LSB distribution", 0.9,
			fmt.Sprintf("Statistical anomaly score=%.4f (>0.8 is suspicious)", stats.AnomalyScore))
		result.PossibleAlgorithm = "LSB Steganography"
	} else if stats.AnomalyScore > 0.5 {
		result.AddFinding("Unusual LSB distribution", 0.7,
			fmt.Sprintf("Statistical anomaly score=%.4f (>0.5 is unusual)", stats.AnomalyScore))
	}
	result.Details["lsb_chi_square"] = stats.ChiSquare
	if stats.ChiSquare < 0.5 && bounds.Dx()*bounds.Dy() >= 64 {
		result.AddFinding("Even/odd pixel values are almost perfectly balanced", 0.5,
			fmt.Sprintf("LSB chi-square=%.4f (<0.5 suggests embedded data)", stats.ChiSquare))
	}
	if stats.Entropy > 0.99 {
		result.AddFinding("Perfect LSB entropy", 0.6,
			fmt.Sprintf("LSB entropy=%.4f (unnaturally perfect randomness)", stats.Entropy))
	}

	s := options.ScannerOrDefault()
	for _, e := range a.extractors(options) {
		candidates, err := e.ExtractFromImage(ctx, img, extractor.ExtractionOptions{
			OutputDir: options.OutputDir,
			Save:      options.Extract && options.OutputDir != "",
			Prefix:    prefix,
			MaxBytes:  analyzer.CandidateLimit,
			Verbose:   options.Verbose,
			Logger:    options.Logger,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn("extraction failed", "extractor", e.Name(), "err", err)
			continue
		}
		for _, c := range candidates {
			result.AddExtractionHint(c.Algorithm, c.Score, c.Details)
			result.AddMatches(analyzer.SweepCandidate(s, options, c)...)
		}
	}

	return result, nil
}

// extractors returns the registered image extractors for the format, or the built-in LSB extractor
func (a *RasterAnalyzer) extractors(options analyzer.AnalysisOptions) []extractor.ImageExtractor {
	var out []extractor.ImageExtractor
	if options.Extractors != nil {
		for _, e := range options.Extractors.GetExtractorsForFormat(options.Format) {
			if ie, ok := e.(extractor.ImageExtractor); ok {
				out = append(out, ie)
			}
		}
	}
	if len(out) == 0 {
		out = append(out, a.fallback)
	}
	return out
}
