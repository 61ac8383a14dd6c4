package mp4

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	mp4ff "github.com/Eyevinn/mp4ff/mp4"

	"FlagSift/pkg/analyzer"
	"FlagSift/pkg/box"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
)

/*
MP4Analyzer walks the box tree of ISO base media files (mp4, mov, m4a, 3gp).
Every leaf box payload is swept: scanned raw and after each transform of the pipeline. Container
payloads are scanned raw only since their children are swept on their own. The whole file goes
through the pipeline once more so encoded data spanning boxes is not missed. Bytes after a broken
top level header are scanned raw since the walker cannot resync there.
Universal extractors (embedded archives) run on the whole file and their output is swept too.
Walk errors become findings, they never abort the analysis.
*/

// MP4Analyzer implements analysis for ISO base media files
type MP4Analyzer struct {
	analyzer.BaseAnalyzer
}

// NewMP4Analyzer creates a new MP4 analyzer
func NewMP4Analyzer() *MP4Analyzer {
	return &MP4Analyzer{
		BaseAnalyzer: analyzer.NewBaseAnalyzer(
			"MP4 Box Analyzer",
			"Walks MP4 boxes and scans every payload for flags, strings and encoded data",
			[]string{filehandler.FormatMP4},
		),
	}
}

// Analyze performs analysis on an MP4 file
func (a *MP4Analyzer) Analyze(ctx context.Context, filePath string, options analyzer.AnalysisOptions) (*models.AnalysisResult, error) {
	data, err := filehandler.ReadFileBytes(filePath, options.Config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	result, err := a.AnalyzeBuffer(ctx, data, options)
	if err != nil {
		return nil, err
	}
	result.Filename = filePath

	if options.Extractors != nil {
		analyzer.ExtractFile(ctx, filePath, options.Extractors.GetExtractorsForFormat(filehandler.FormatMP4),
			options.Extractors.Universal(), result, options)
	}
	return result, nil
}

// AnalyzeBuffer analyzes an in-memory MP4 file
func (a *MP4Analyzer) AnalyzeBuffer(ctx context.Context, data []byte, options analyzer.AnalysisOptions) (*models.AnalysisResult, error) {
	start := time.Now()
	log := logging.OrDiscard(options.Logger)
	s := options.ScannerOrDefault()
	result := models.NewAnalysisResult("", filehandler.FormatMP4, a.Name())

	w := box.NewWalker(data, options.Config.BoxOptions())
	var boxes []box.Box
	for w.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := w.Box()
		boxes = append(boxes, b)
		result.Boxes = append(result.Boxes, models.BoxRecord{
			Type:       b.Type.String(),
			Offset:     b.Offset,
			FileOffset: b.FileOffset,
			Size:       b.Size,
			HeaderSize: b.HeaderSize,
			Depth:      b.Depth,
			Truncated:  b.Truncated,
		})
		if b.Truncated {
			result.AddFinding("Box size overruns its parent", 0.4,
				fmt.Sprintf("%s box at offset %d was clamped to %d bytes", b.Type, b.FileOffset, b.Size))
		}
		result.AddMatches(analyzer.SweepBox(s, options, b)...)
	}

	for _, werr := range w.Errs() {
		log.Debug("box walk error", "err", werr)
		result.WalkErrors = append(result.WalkErrors, werr.Error())
		result.AddFinding("Malformed box structure", 0.3, werr.Error())
		if werr.Depth == 0 && werr.FileOffset < int64(len(data)) {
			result.AddMatches(s.ScanData("unwalked", werr.FileOffset, data[werr.FileOffset:], "")...)
		}
	}

	if options.Pipeline != nil {
		for out := range options.Pipeline.Run(data) {
			for _, m := range s.ScanData("file", 0, out.Data, out.Label) {
				if m.Kind == models.MatchKindFlag {
					result.AddMatches(m)
				}
			}
		}
	}

	if options.Extractors != nil {
		if err := analyzer.SweepExtracted(ctx, options, options.Extractors.Universal(), data, result); err != nil {
			return nil, err
		}
	}

	summary := box.Summary(boxes)
	result.Details["box_count"] = len(boxes)
	result.Details["box_types"] = summary
	for k, v := range describe(data, log) {
		result.Details[k] = v
	}

	if summary["free"]+summary["skip"]+summary["uuid"] > 0 {
		result.Recommendations = append(result.Recommendations,
			"Dump free/skip/uuid payloads with --extract")
	}
	if len(boxes) == 0 {
		result.AddFinding("No boxes could be read", 0.2, "the file does not start with a valid box header")
	}

	return analyzer.Finish(result, start), nil
}

// describe decodes the movie header with mp4ff. Decoding failures only lose the summary.
func describe(data []byte, log *slog.Logger) (details map[string]interface{}) {
	details = map[string]interface{}{}
	defer func() {
		if r := recover(); r != nil {
			log.Debug("mp4 decode panicked", "panic", r)
		}
	}()

	f, err := mp4ff.DecodeFile(bytes.NewReader(data))
	if err != nil {
		log.Debug("mp4 decode failed", "err", err)
		return details
	}
	if f.Ftyp != nil {
		details["major_brand"] = f.Ftyp.MajorBrand()
		details["compatible_brands"] = f.Ftyp.CompatibleBrands()
	}
	if f.Moov == nil {
		return details
	}
	if mvhd := f.Moov.Mvhd; mvhd != nil && mvhd.Timescale > 0 {
		details["timescale"] = mvhd.Timescale
		details["duration_seconds"] = float64(mvhd.Duration) / float64(mvhd.Timescale)
	}
	var handlers []string
	for _, trak := range f.Moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil {
			handlers = append(handlers, trak.Mdia.Hdlr.HandlerType)
		}
	}
	details["track_handlers"] = handlers
	details["fragmented"] = f.IsFragmented()
	return details
}
