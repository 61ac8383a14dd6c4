package raw

import (
	"context"
	"time"

	"FlagSift/pkg/analyzer"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/models"
)

// RawAnalyzer scans a file as one flat buffer. It handles formats without a structural analyzer
// and is the registry fallback for everything else. The extractors registered for the format
// (WAV sample bits, embedded archives) run on the buffer and their output is swept as well.
type RawAnalyzer struct {
	analyzer.BaseAnalyzer
}

// NewRawAnalyzer creates a new raw analyzer
func NewRawAnalyzer() *RawAnalyzer {
	return &RawAnalyzer{
		BaseAnalyzer: analyzer.NewBaseAnalyzer(
			"Raw Analyzer",
			"Scans the whole file for flags and encoded data, and the file tail for strings",
			[]string{filehandler.FormatMP3, filehandler.FormatWAV, filehandler.FormatWEBP, filehandler.FormatBinary},
		),
	}
}

// Analyze performs analysis on any file
func (a *RawAnalyzer) Analyze(ctx context.Context, filePath string, options analyzer.AnalysisOptions) (*models.AnalysisResult, error) {
	data, err := filehandler.ReadFileBytes(filePath, options.Config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	format := options.Format
	if format == "" {
		format = filehandler.SniffFormat(data)
	}

	result, err := a.AnalyzeBuffer(ctx, data, format, options)
	if err != nil {
		return nil, err
	}
	result.Filename = filePath

	if options.Extractors != nil {
		extractors := options.Extractors.GetExtractorsForFormat(format)
		analyzer.ExtractFile(ctx, filePath, extractors, extractors, result, options)
	}
	return result, nil
}

// AnalyzeBuffer analyzes an in-memory file.
// Flags are searched everywhere, printable strings only in the last TailBytes bytes.
func (a *RawAnalyzer) AnalyzeBuffer(ctx context.Context, data []byte, format string, options analyzer.AnalysisOptions) (*models.AnalysisResult, error) {
	start := time.Now()
	s := options.ScannerOrDefault()
	result := models.NewAnalysisResult("", format, a.Name())
	result.Details["size"] = len(data)

	for _, m := range analyzer.Sweep(s, options, "file", 0, 0, data) {
		if m.Kind == models.MatchKindFlag {
			result.AddMatches(m)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if options.Extractors != nil {
		err := analyzer.SweepExtracted(ctx, options, options.Extractors.GetExtractorsForFormat(format), data, result)
		if err != nil {
			return nil, err
		}
	}

	tail := options.Config.TailBytes
	if tail > 0 {
		off := 0
		if len(data) > tail {
			off = len(data) - tail
		}
		for _, m := range s.ScanData("tail", int64(off), data[off:], "") {
			if m.Kind == models.MatchKindString {
				result.AddMatches(m)
			}
		}
		result.Details["tail_offset"] = off
	}

	return analyzer.Finish(result, start), nil
}
