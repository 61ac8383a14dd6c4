package analyzer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"FlagSift/pkg/box"
	"FlagSift/pkg/extractor"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
	"FlagSift/pkg/scanner"
)

// CandidateLimit caps the bytes an extractor pulls out per strategy or member during analysis
const CandidateLimit = 1 << 20

// ScannerOrDefault returns the compiled scanner, compiling the config one if none was given
func (o AnalysisOptions) ScannerOrDefault() *scanner.Scanner {
	if o.Scanner != nil {
		return o.Scanner
	}
	return scanner.New(o.Config.Scanner)
}

// Sweep scans data as it is and after every transform of the pipeline.
// Decoded outputs only contribute flag matches, their printable runs are mostly noise.
func Sweep(s *scanner.Scanner, options AnalysisOptions, boxType string, boxOffset int64, depth int, data []byte) []models.Match {
	matches := s.ScanData(boxType, boxOffset, data, "")
	if options.Pipeline != nil {
		for out := range options.Pipeline.Run(data) {
			for _, m := range s.ScanData(boxType, boxOffset, out.Data, out.Label) {
				if m.Kind == models.MatchKindFlag {
					matches = append(matches, m)
				}
			}
		}
	}
	for i := range matches {
		matches[i].Depth = depth
	}
	return matches
}

// SweepBox sweeps the payload of a walked box. Container payloads are only scanned raw, their
// children get the full sweep when the walk reaches them.
func SweepBox(s *scanner.Scanner, options AnalysisOptions, b box.Box) []models.Match {
	if b.Container {
		return s.ScanBox(b)
	}
	return Sweep(s, options, b.Type.String(), b.FileOffset, b.Depth, b.Payload)
}

// SweepCandidate sweeps data pulled out by an extractor. Printable strings are kept only when
// the candidate is text, and every match is attributed to the extraction algorithm.
func SweepCandidate(s *scanner.Scanner, options AnalysisOptions, c *models.ExtractionResult) []models.Match {
	offset, _ := c.Details["file_offset"].(int64)
	var matches []models.Match
	for _, m := range Sweep(s, options, c.Algorithm, offset, 0, c.ExtractedData) {
		if m.Kind == models.MatchKindString && c.DataType != "text" {
			continue
		}
		if m.Source == "" {
			m.Source = c.Algorithm
		} else {
			m.Source = c.Algorithm + "+" + m.Source
		}
		matches = append(matches, m)
	}
	return matches
}

// SweepExtracted runs every in-memory extractor over data, records an extraction hint per
// candidate and sweeps the candidates into result. Extractor failures are logged, only a
// cancelled context is returned.
func SweepExtracted(ctx context.Context, options AnalysisOptions, extractors []extractor.DataExtractor, data []byte, result *models.AnalysisResult) error {
	log := logging.OrDiscard(options.Logger)
	s := options.ScannerOrDefault()
	for _, e := range extractors {
		be, ok := e.(extractor.BufferExtractor)
		if !ok {
			continue
		}
		candidates, err := be.ExtractFromBuffer(ctx, data, extractor.ExtractionOptions{
			MaxBytes: CandidateLimit,
			Verbose:  options.Verbose,
			Logger:   options.Logger,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Debug("extractor found nothing", "extractor", e.Name(), "err", err)
			continue
		}
		var best *models.ExtractionResult
		for _, c := range candidates {
			result.AddExtractionHint(c.Algorithm, c.Score, c.Details)
			if !c.Success {
				continue
			}
			result.AddMatches(SweepCandidate(s, options, c)...)
			if best == nil || c.Score > best.Score {
				best = c
			}
		}
		if best != nil && best.Score >= 0.9 {
			result.AddFinding(e.Name()+" recovered printable data", 0.7,
				fmt.Sprintf("%s candidate of %d bytes is %.0f%% printable", best.Algorithm, best.DataSize, best.Score*100))
		}
	}
	return nil
}

// ExtractFile runs extractors on the file and saves what they pull out under options.OutputDir.
// Saved files become recommendations. Extractors in swept already left their hints during
// analysis, the others add theirs here.
func ExtractFile(ctx context.Context, filePath string, extractors, swept []extractor.DataExtractor, result *models.AnalysisResult, options AnalysisOptions) {
	if !options.Extract {
		return
	}
	log := logging.OrDiscard(options.Logger)
	for _, e := range extractors {
		extracted, err := e.Extract(ctx, filePath, extractor.ExtractionOptions{
			OutputDir: options.OutputDir,
			Save:      options.OutputDir != "",
			Prefix:    strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)),
			Verbose:   options.Verbose,
			Logger:    options.Logger,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn("extraction failed", "extractor", e.Name(), "err", err)
			continue
		}
		hinted := slices.Contains(swept, e)
		for _, x := range extracted {
			if !hinted {
				result.AddExtractionHint(x.Algorithm, x.Score, x.Details)
			}
			for _, path := range x.OutputFiles {
				result.Recommendations = append(result.Recommendations, "Inspect extracted payload "+path)
			}
		}
	}
}

// Finish deduplicates the matches, derives the detection score and stamps the duration.
// A match found both in a container and in one of its children is kept for the child.
func Finish(result *models.AnalysisResult, start time.Time) *models.AnalysisResult {
	matches := result.Matches
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Depth > matches[j].Depth
	})
	matches = scanner.Dedup(matches)
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].BoxOffset != matches[j].BoxOffset {
			return matches[i].BoxOffset < matches[j].BoxOffset
		}
		return matches[i].Offset < matches[j].Offset
	})
	if matches == nil {
		matches = []models.Match{}
	}
	result.Matches = matches

	if flags := result.Flags(); len(flags) > 0 {
		result.DetectionScore = 1.0
		result.Confidence = 1.0
		first := flags[0]
		details := fmt.Sprintf("%s in %s box at offset %d", first.Text, first.BoxType, first.BoxOffset)
		if first.Source != "" {
			details += " after " + first.Source
			result.PossibleAlgorithm = first.Source
		}
		result.AddFinding(fmt.Sprintf("%d flag candidate(s) found", len(flags)), 1.0, details)
		result.Recommendations = append(result.Recommendations, "Verify the flag candidates against the challenge format")
	} else {
		for _, f := range result.Findings {
			if f.Confidence > result.DetectionScore {
				result.DetectionScore = f.Confidence
			}
		}
		if len(result.Matches) > 0 {
			result.Recommendations = append(result.Recommendations, "Review the printable strings for encoded data")
		}
	}

	result.AnalysisDuration = time.Since(start)
	return result
}
