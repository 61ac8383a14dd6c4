package lsb

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"FlagSift/pkg/extractor"
	"FlagSift/pkg/filehandler"
	"FlagSift/pkg/logging"
	"FlagSift/pkg/models"
)

const (
	// Common file signatures/magic numbers
	pngSignature = "\x89PNG"
	jpgSignature = "\xff\xd8\xff"
	pdfSignature = "%PDF"
	zipSignature = "PK\x03\x04"
	gifSignature = "GIF8"
	bmpSignature = "BM"
)

// MaxExtractSize is the maximum size of data to extract per strategy
const MaxExtractSize = 50 * 1024 * 1024 // 50MB

// Channel indexes into an RGBA sample
const (
	chR = iota
	chG
	chB
	chA
)

// strategy reads the low bit of the listed channels. Sequential strategies interleave the
// channels pixel by pixel; planar ones read a whole channel before moving to the next.
type strategy struct {
	name     string
	channels []int
	planar   bool
}

var strategies = []strategy{
	{"sequential-rgb", []int{chR, chG, chB}, false},
	{"sequential-rgba", []int{chR, chG, chB, chA}, false},
	{"sequential-r", []int{chR}, false},
	{"sequential-g", []int{chG}, false},
	{"sequential-b", []int{chB}, false},
	{"planes-rgb", []int{chR, chG, chB}, true},
}

// LSBExtractor implements the ImageExtractor interface for LSB steganography
type LSBExtractor struct {
	extractor.BaseExtractor
}

// NewLSBExtractor creates a new LSB extractor
func NewLSBExtractor() *LSBExtractor {
	formats := []string{
		filehandler.FormatPNG, filehandler.FormatBMP, filehandler.FormatTIFF,
		filehandler.FormatJPEG, filehandler.FormatGIF,
	}
	algorithms := make([]string, 0, len(strategies))
	for _, s := range strategies {
		algorithms = append(algorithms, "lsb-"+s.name)
	}

	return &LSBExtractor{
		BaseExtractor: extractor.NewBaseExtractor("LSB Extractor", formats, algorithms),
	}
}

// Extract implements the DataExtractor interface
func (e *LSBExtractor) Extract(ctx context.Context, filePath string, options extractor.ExtractionOptions) ([]*models.ExtractionResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if options.Prefix == "" {
		options.Prefix = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	return e.ExtractFromImage(ctx, img, options)
}

// ExtractFromImage runs every strategy and returns the candidates, best scored first
func (e *LSBExtractor) ExtractFromImage(ctx context.Context, img image.Image, options extractor.ExtractionOptions) ([]*models.ExtractionResult, error) {
	if img == nil {
		return nil, errors.New("nil image provided")
	}
	log := logging.OrDiscard(options.Logger)

	maxBytes := options.MaxBytes
	if maxBytes <= 0 || maxBytes > MaxExtractSize {
		maxBytes = MaxExtractSize
	}

	samples := readSamples(img)

	var results []*models.ExtractionResult
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Debug("trying lsb strategy", "strategy", s.name)

		data := s.extract(samples, maxBytes)
		if len(data) == 0 {
			continue
		}

		result, err := processExtractedData(s.name, data, options)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	if len(results) == 0 {
		return nil, errors.New("failed to extract any hidden data")
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// readSamples flattens the image to 8-bit RGBA samples in row order
func readSamples(img image.Image) [][4]uint8 {
	bounds := img.Bounds()
	samples := make([][4]uint8, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			samples = append(samples, [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)})
		}
	}
	return samples
}

// bitWriter packs bits MSB first and stops accepting bits once max bytes are complete
type bitWriter struct {
	out   []byte
	cur   byte
	n     int
	limit int
}

func (w *bitWriter) push(bit uint8) bool {
	w.cur |= (bit & 1) << uint(7-w.n)
	w.n++
	if w.n == 8 {
		w.out = append(w.out, w.cur)
		w.cur, w.n = 0, 0
	}
	return len(w.out) < w.limit
}

func (w *bitWriter) bytes() []byte {
	if w.n > 0 {
		w.out = append(w.out, w.cur)
		w.cur, w.n = 0, 0
	}
	return w.out
}

func (s strategy) extract(samples [][4]uint8, maxBytes int) []byte {
	w := &bitWriter{limit: maxBytes}
	if s.planar {
		for _, ch := range s.channels {
			for _, px := range samples {
				if !w.push(px[ch]) {
					return w.bytes()
				}
			}
		}
		return w.bytes()
	}
	for _, px := range samples {
		for _, ch := range s.channels {
			if !w.push(px[ch]) {
				return w.bytes()
			}
		}
	}
	return w.bytes()
}

// evaluateExtraction scores the quality of extracted data
func evaluateExtraction(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	score := 0.0

	// Check for known file signatures
	if detectFileSignature(data) != "" {
		score += 0.5
	}

	score += evaluateAsText(data) * 0.3

	// Too low entropy is likely zeros, too high is likely noise
	entropy := calculateDataEntropy(data)
	if entropy > 3.5 && entropy < 7.5 {
		score += 0.2
	}

	score -= calculateRepetitionPenalty(data)

	return score
}

// detectFileSignature checks if the data starts with a known file signature
func detectFileSignature(data []byte) string {
	if len(data) < 8 {
		return ""
	}

	prefix := string(data[:8])

	switch {
	case strings.HasPrefix(prefix, pngSignature):
		return "png"
	case strings.HasPrefix(prefix, jpgSignature):
		return "jpg"
	case strings.HasPrefix(prefix, pdfSignature):
		return "pdf"
	case strings.HasPrefix(prefix, zipSignature):
		return "zip"
	case strings.HasPrefix(prefix, gifSignature):
		return "gif"
	case strings.HasPrefix(prefix, bmpSignature):
		return "bmp"
	}

	return ""
}

// evaluateAsText determines if the data is likely to be text
func evaluateAsText(data []byte) float64 {
	if len(data) < 10 {
		return 0.0
	}

	if !utf8.Valid(data) {
		return 0.0
	}

	printable := 0
	control := 0
	for _, b := range data {
		if b >= 32 && b <= 126 {
			printable++
		} else if b < 32 || b == 127 {
			// newline, tab and carriage return are fine
			if b != 9 && b != 10 && b != 13 {
				control++
			}
		}
	}

	printableRatio := float64(printable) / float64(len(data))
	controlRatio := float64(control) / float64(len(data))

	textScore := printableRatio - (controlRatio * 2)
	if textScore < 0 {
		return 0.0
	} else if textScore > 1.0 {
		return 1.0
	}

	return textScore
}

// calculateDataEntropy calculates Shannon entropy of the data in bits per byte
func calculateDataEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	entropy := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(len(data))
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// calculateRepetitionPenalty detects unnatural byte repetitions
func calculateRepetitionPenalty(data []byte) float64 {
	if len(data) < 20 {
		return 0.0
	}

	maxRepeatLength := 0
	currentRepeat := 1

	for i := 1; i < len(data); i++ {
		if data[i] == data[i-1] {
			currentRepeat++
		} else {
			if currentRepeat > maxRepeatLength {
				maxRepeatLength = currentRepeat
			}
			currentRepeat = 1
		}
	}
	if currentRepeat > maxRepeatLength {
		maxRepeatLength = currentRepeat
	}

	if maxRepeatLength > 20 {
		return 0.3
	} else if maxRepeatLength > 10 {
		return 0.1
	}

	return 0.0
}

// processExtractedData classifies the extracted data and saves it when asked
func processExtractedData(method string, data []byte, options extractor.ExtractionOptions) (*models.ExtractionResult, error) {
	fileType := detectFileSignature(data)

	extension := "bin"
	mimeType := "application/octet-stream"
	dataType := "binary"

	if fileType != "" {
		extension = fileType
		switch fileType {
		case "png":
			mimeType = "image/png"
		case "jpg":
			mimeType = "image/jpeg"
		case "pdf":
			mimeType = "application/pdf"
		case "zip":
			mimeType = "application/zip"
		case "gif":
			mimeType = "image/gif"
		case "bmp":
			mimeType = "image/bmp"
		}
	} else if evaluateAsText(data) > 0.7 {
		extension = "txt"
		mimeType = "text/plain"
		dataType = "text"
	}

	result := &models.ExtractionResult{
		Algorithm:     "lsb-" + method,
		Success:       true,
		FileType:      fileType,
		ExtractedData: data,
		DataSize:      len(data),
		Score:         evaluateExtraction(data),
		Details: map[string]interface{}{
			"extraction_method": method,
			"text_quality":      evaluateAsText(data),
			"entropy":           calculateDataEntropy(data),
		},
		MimeType: mimeType,
		DataType: dataType,
	}

	if options.Save && options.OutputDir != "" {
		prefix := options.Prefix
		if prefix == "" {
			prefix = "extracted"
		}
		outputPath := filepath.Join(options.OutputDir, fmt.Sprintf("%s_lsb_%s.%s", prefix, method, extension))
		if err := filehandler.SaveFile(data, outputPath); err != nil {
			return nil, fmt.Errorf("failed to write extracted data: %w", err)
		}
		result.OutputFiles = append(result.OutputFiles, outputPath)
	}

	return result, nil
}
