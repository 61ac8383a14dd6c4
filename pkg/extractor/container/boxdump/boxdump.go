// Package boxdump pulls the payloads of the boxes that usually carry hidden data out of MP4 files.
package boxdump

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"FlagSift/pkg/box"
	"FlagSift/pkg/extractor"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
	"FlagSift/pkg/scanner"
)

// DefaultTypes are the box types dumped when none are configured.
// Padding and user data boxes are opaque to players, so they are where data gets stashed.
var DefaultTypes = []string{"free", "skip", "wide", "uuid", "udta", "meta", "ilst", "data"}

// Extractor dumps box payloads
type Extractor struct {
	extractor.BaseExtractor
	opts        box.Options
	types       map[string]bool
	maxFileSize int64
}

// New creates a box payload extractor that walks with opts and dumps the given types
func New(opts box.Options, types []string, maxFileSize int64) *Extractor {
	if len(types) == 0 {
		types = DefaultTypes
	}
	set := make(map[string]bool, len(types))
	algorithms := make([]string, 0, len(types))
	for _, t := range types {
		set[t] = true
		algorithms = append(algorithms, "box-"+t)
	}
	return &Extractor{
		BaseExtractor: extractor.NewBaseExtractor("Box Payload Extractor", []string{filehandler.FormatMP4}, algorithms),
		opts:          opts,
		types:         set,
		maxFileSize:   maxFileSize,
	}
}

// Extract implements the DataExtractor interface
func (e *Extractor) Extract(ctx context.Context, filePath string, options extractor.ExtractionOptions) ([]*models.ExtractionResult, error) {
	data, err := filehandler.ReadFileBytes(filePath, e.maxFileSize)
	if err != nil {
		return nil, err
	}
	if options.Prefix == "" {
		options.Prefix = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	return e.ExtractFromBuffer(ctx, data, options)
}

// ExtractFromBuffer walks buf and returns one result per non-empty payload of a dumped type, in walk order
func (e *Extractor) ExtractFromBuffer(ctx context.Context, buf []byte, options extractor.ExtractionOptions) ([]*models.ExtractionResult, error) {
	log := logging.OrDiscard(options.Logger)

	var results []*models.ExtractionResult
	w := box.NewWalker(buf, e.opts)
	for w.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := w.Box()
		name := b.Type.String()
		if !e.types[name] || len(b.Payload) == 0 {
			continue
		}

		payload := b.Payload
		if options.MaxBytes > 0 && len(payload) > options.MaxBytes {
			payload = payload[:options.MaxBytes]
		}
		result := &models.ExtractionResult{
			Success:       true,
			Algorithm:     "box-" + name,
			ExtractedData: payload,
			DataSize:      len(payload),
			Score:         scanner.PrintableRatio(payload),
			Details: map[string]interface{}{
				"box_type":    name,
				"file_offset": b.FileOffset,
				"depth":       b.Depth,
				"size":        b.Size,
				"truncated":   b.Truncated,
			},
			MimeType: "application/octet-stream",
			DataType: "binary",
		}
		if scanner.IsText(payload) {
			result.DataType = "text"
			result.MimeType = "text/plain"
		}

		if options.Save && options.OutputDir != "" {
			prefix := options.Prefix
			if prefix == "" {
				prefix = "extracted"
			}
			outputPath := filepath.Join(options.OutputDir, fmt.Sprintf("%s_%s_%d.bin", prefix, name, b.FileOffset))
			if err := filehandler.SaveFile(payload, outputPath); err != nil {
				return nil, fmt.Errorf("failed to write %s payload: %w", name, err)
			}
			result.OutputFiles = append(result.OutputFiles, outputPath)
		}
		log.Debug("dumped box payload", "type", name, "offset", b.FileOffset, "bytes", len(payload))
		results = append(results, result)
	}
	for _, werr := range w.Errs() {
		log.Warn("box walk stopped", "err", werr)
	}
	return results, nil
}
