// Package zipcarve finds ZIP archives hidden inside other files and reads their members.
//
// An archive is tried at every local file header signature. The central directory is located
// from the first end-of-directory record after that header, so an archive followed by more
// data still opens.
package zipcarve

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"FlagSift/pkg/extractor"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
	"FlagSift/pkg/scanner"
)

const (
	// MaxArchives caps the local header signatures tried per file
	MaxArchives = 16
	// DefaultMemberLimit caps the bytes read from one member when no MaxBytes is given
	DefaultMemberLimit = 10 << 20

	endOfDirSize  = 22
	flagEncrypted = 0x1
)

var (
	localHeaderSig = []byte("PK\x03\x04")
	endOfDirSig    = []byte("PK\x05\x06")
)

// Extractor carves embedded ZIP archives
type Extractor struct {
	extractor.BaseExtractor
	maxFileSize int64
}

// New creates a ZIP carver that accepts files of every format
func New(maxFileSize int64) *Extractor {
	return &Extractor{
		BaseExtractor: extractor.NewBaseExtractor("Embedded ZIP Extractor", []string{extractor.AnyFormat}, []string{"zip"}),
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

// ExtractFromBuffer returns one result per file member of every archive found in buf.
// Encrypted members are reported without data.
func (e *Extractor) ExtractFromBuffer(ctx context.Context, buf []byte, options extractor.ExtractionOptions) ([]*models.ExtractionResult, error) {
	log := logging.OrDiscard(options.Logger)
	limit := options.MaxBytes
	if limit <= 0 {
		limit = DefaultMemberLimit
	}

	var results []*models.ExtractionResult
	next := 0
	for tried := 0; tried < MaxArchives && next < len(buf); tried++ {
		i := bytes.Index(buf[next:], localHeaderSig)
		if i < 0 {
			break
		}
		start := next + i
		next = start + len(localHeaderSig)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		zr, end, err := open(buf, start)
		if err != nil {
			log.Debug("no archive at signature", "offset", start, "err", err)
			continue
		}
		log.Debug("found embedded archive", "offset", start, "members", len(zr.File))
		members, err := e.members(zr, int64(start), limit, options)
		if err != nil {
			return nil, err
		}
		results = append(results, members...)
		next = max(next, end)
	}
	return results, nil
}

// open reads the archive starting at start. It returns the end of the bytes it was read from.
func open(buf []byte, start int) (*zip.Reader, int, error) {
	data := buf[start:]
	end := len(buf)
	if eocd := bytes.Index(data, endOfDirSig); eocd >= 0 && eocd+endOfDirSize <= len(data) {
		commentLen := int(binary.LittleEndian.Uint16(data[eocd+20:]))
		end = start + min(eocd+endOfDirSize+commentLen, len(data))
	}

	zr, err := zip.NewReader(bytes.NewReader(buf[start:end]), int64(end-start))
	if err == nil {
		return zr, end, nil
	}
	if end < len(buf) {
		if zr, errAll := zip.NewReader(bytes.NewReader(data), int64(len(data))); errAll == nil {
			return zr, len(buf), nil
		}
	}
	return nil, 0, err
}

func (e *Extractor) members(zr *zip.Reader, archiveOffset int64, limit int, options extractor.ExtractionOptions) ([]*models.ExtractionResult, error) {
	var results []*models.ExtractionResult
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		result := &models.ExtractionResult{
			FileType:  "zip",
			Algorithm: "zip",
			Details: map[string]interface{}{
				"file_offset": archiveOffset,
				"member":      f.Name,
				"method":      f.Method,
				"size":        f.UncompressedSize64,
				"encrypted":   f.Flags&flagEncrypted != 0,
			},
			MimeType: "application/octet-stream",
			DataType: "binary",
		}
		if f.Flags&flagEncrypted != 0 {
			results = append(results, result)
			continue
		}

		data, err := readMember(f, limit)
		if err != nil {
			result.Details["error"] = err.Error()
			results = append(results, result)
			continue
		}
		result.Success = true
		result.ExtractedData = data
		result.DataSize = len(data)
		result.Score = scanner.PrintableRatio(data)
		if scanner.IsText(data) {
			result.DataType = "text"
			result.MimeType = "text/plain"
		}

		if options.Save && options.OutputDir != "" {
			prefix := options.Prefix
			if prefix == "" {
				prefix = "extracted"
			}
			outputPath := filepath.Join(options.OutputDir,
				fmt.Sprintf("%s_zip_%d_%s", prefix, archiveOffset, filepath.Base(f.Name)))
			if err := filehandler.SaveFile(data, outputPath); err != nil {
				return nil, fmt.Errorf("failed to write member %s: %w", f.Name, err)
			}
			result.OutputFiles = append(result.OutputFiles, outputPath)
		}
		results = append(results, result)
	}
	return results, nil
}

// readMember reads at most limit bytes of f. A member cut at the limit is still returned.
func readMember(f *zip.File, limit int) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)))
	if err != nil && !errors.Is(err, zip.ErrChecksum) {
		return nil, err
	}
	return data, nil
}
