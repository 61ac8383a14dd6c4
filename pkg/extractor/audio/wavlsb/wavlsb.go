// Package wavlsb reads the least significant bit of every PCM sample of a WAV file.
package wavlsb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"FlagSift/pkg/extractor"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
	"FlagSift/pkg/scanner"
	"FlagSift/pkg/transform"
)

// DefaultMaxBytes caps the bytes produced per strategy when no MaxBytes is given
const DefaultMaxBytes = 1 << 20

const (
	formatPCM        = 1
	formatExtensible = 0xfffe
)

// Parse errors
var (
	ErrNotWAV      = errors.New("not a RIFF WAVE file")
	ErrNoPCM       = errors.New("no PCM format chunk")
	ErrNoDataChunk = errors.New("no data chunk")
)

// Format is the part of the fmt chunk the extractor needs
type Format struct {
	AudioFormat   uint16
	Channels      int
	SampleRate    uint32
	BlockAlign    int
	BitsPerSample int
}

// BytesPerSample returns the storage size of one sample of one channel
func (f Format) BytesPerSample() int {
	return (f.BitsPerSample + 7) / 8
}

// Audio is a parsed WAV file. Data aliases the parsed buffer.
type Audio struct {
	Format     Format
	Data       []byte
	DataOffset int64
}

// Parse walks the RIFF chunks of buf. A data chunk overrunning the buffer is cut at its end.
func Parse(buf []byte) (*Audio, error) {
	if len(buf) < 12 || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var audio Audio
	haveFormat := false
	pos := 12
	for pos+8 <= len(buf) {
		id := string(buf[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))
		body := pos + 8
		end := min(body+size, len(buf))

		switch id {
		case "fmt ":
			chunk := buf[body:end]
			if len(chunk) < 16 {
				return nil, ErrNoPCM
			}
			audio.Format = Format{
				AudioFormat:   binary.LittleEndian.Uint16(chunk[0:2]),
				Channels:      int(binary.LittleEndian.Uint16(chunk[2:4])),
				SampleRate:    binary.LittleEndian.Uint32(chunk[4:8]),
				BlockAlign:    int(binary.LittleEndian.Uint16(chunk[12:14])),
				BitsPerSample: int(binary.LittleEndian.Uint16(chunk[14:16])),
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, ErrNoPCM
			}
			audio.Data = buf[body:end]
			audio.DataOffset = int64(body)
			return validate(&audio)
		}
		// chunks are padded to an even size
		pos = end + end%2
	}
	if !haveFormat {
		return nil, ErrNoPCM
	}
	return nil, ErrNoDataChunk
}

func validate(a *Audio) (*Audio, error) {
	f := a.Format
	if f.AudioFormat != formatPCM && f.AudioFormat != formatExtensible {
		return nil, fmt.Errorf("%w: audio format %d", ErrNoPCM, f.AudioFormat)
	}
	if f.Channels < 1 || f.BitsPerSample < 8 || f.BitsPerSample > 32 {
		return nil, fmt.Errorf("%w: %d channels of %d bits", ErrNoPCM, f.Channels, f.BitsPerSample)
	}
	if f.BlockAlign < f.Channels*f.BytesPerSample() {
		a.Format.BlockAlign = f.Channels * f.BytesPerSample()
	}
	return a, nil
}

type strategy struct {
	name     string
	leftOnly bool
	msbFirst bool
}

var strategies = []strategy{
	{name: "wav-lsb-all-lsbfirst"},
	{name: "wav-lsb-all-msbfirst", msbFirst: true},
	{name: "wav-lsb-left-lsbfirst", leftOnly: true},
	{name: "wav-lsb-left-msbfirst", leftOnly: true, msbFirst: true},
}

// Extractor pulls sample LSB streams out of WAV files
type Extractor struct {
	extractor.BaseExtractor
	maxFileSize int64
}

// New creates a WAV sample LSB extractor
func New(maxFileSize int64) *Extractor {
	algorithms := make([]string, 0, len(strategies))
	for _, s := range strategies {
		algorithms = append(algorithms, s.name)
	}
	return &Extractor{
		BaseExtractor: extractor.NewBaseExtractor("WAV Sample LSB Extractor", []string{filehandler.FormatWAV}, algorithms),
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

// ExtractFromBuffer returns one candidate per strategy. Mono files skip the left channel strategies.
func (e *Extractor) ExtractFromBuffer(ctx context.Context, buf []byte, options extractor.ExtractionOptions) ([]*models.ExtractionResult, error) {
	log := logging.OrDiscard(options.Logger)
	audio, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	maxBytes := options.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	f := audio.Format
	var results []*models.ExtractionResult
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.leftOnly && f.Channels < 2 {
			continue
		}
		// little-endian samples keep their low bit in the first byte
		stride := f.BytesPerSample()
		if s.leftOnly {
			stride = f.BlockAlign
		}
		samples := audio.Data
		if limit := maxBytes * 8 * stride; len(samples) > limit {
			samples = samples[:limit]
		}
		data := transform.PackSampleBits(samples, stride, 0, 0, s.msbFirst)

		result := &models.ExtractionResult{
			Success:       len(data) > 0,
			FileType:      filehandler.FormatWAV,
			Algorithm:     s.name,
			ExtractedData: data,
			DataSize:      len(data),
			Score:         scanner.PrintableRatio(data),
			Details: map[string]interface{}{
				"file_offset":     audio.DataOffset,
				"channels":        f.Channels,
				"sample_rate":     f.SampleRate,
				"bits_per_sample": f.BitsPerSample,
				"stride":          stride,
			},
			MimeType: "application/octet-stream",
			DataType: "binary",
		}
		if scanner.IsText(data) {
			result.DataType = "text"
			result.MimeType = "text/plain"
		}

		if options.Save && options.OutputDir != "" && len(data) > 0 {
			prefix := options.Prefix
			if prefix == "" {
				prefix = "extracted"
			}
			outputPath := filepath.Join(options.OutputDir, fmt.Sprintf("%s_%s.bin", prefix, s.name))
			if err := filehandler.SaveFile(data, outputPath); err != nil {
				return nil, fmt.Errorf("failed to write %s stream: %w", s.name, err)
			}
			result.OutputFiles = append(result.OutputFiles, outputPath)
		}
		log.Debug("extracted sample bits", "strategy", s.name, "bytes", len(data))
		results = append(results, result)
	}
	return results, nil
}
