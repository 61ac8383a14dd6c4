package filehandler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

/*
File handling for the scanners: format detection, whole-file reads, saving extracted data.
Format detection trusts the file content before the extension, since challenge files are often
renamed. Everything that is not recognised is reported as "bin" and still gets a raw scan.
*/

// Format names
const (
	FormatMP4    = "mp4"
	FormatPNG    = "png"
	FormatJPEG   = "jpeg"
	FormatGIF    = "gif"
	FormatBMP    = "bmp"
	FormatTIFF   = "tiff"
	FormatWEBP   = "webp"
	FormatMP3    = "mp3"
	FormatWAV    = "wav"
	FormatBinary = "bin"
)

// SupportedFormats maps file extensions to their format names
var SupportedFormats = map[string]string{
	".mp4":  FormatMP4,
	".m4a":  FormatMP4,
	".m4v":  FormatMP4,
	".m4b":  FormatMP4,
	".mov":  FormatMP4,
	".3gp":  FormatMP4,
	".heic": FormatMP4,
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".webp": FormatWEBP,
	".mp3":  FormatMP3,
	".wav":  FormatWAV,
}

// DetectFileFormat detects the format of a file
func DetectFileFormat(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Read first 512 bytes to detect content type
	buffer := make([]byte, 512)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	if format := SniffFormat(buffer[:n]); format != FormatBinary {
		return format, nil
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if format, ok := SupportedFormats[ext]; ok {
		return format, nil
	}
	return FormatBinary, nil
}

// SniffFormat guesses a format from the first bytes of a file
func SniffFormat(head []byte) string {
	// ISO base media files open with a box, usually ftyp, sometimes a bare moov/free/mdat.
	if len(head) >= 8 {
		switch string(head[4:8]) {
		case "ftyp", "moov", "mdat", "free", "wide", "skip":
			return FormatMP4
		}
	}
	if bytes.HasPrefix(head, []byte("II*\x00")) || bytes.HasPrefix(head, []byte("MM\x00*")) {
		return FormatTIFF
	}

	contentType := http.DetectContentType(head)
	switch {
	case strings.Contains(contentType, "image/png"):
		return FormatPNG
	case strings.Contains(contentType, "image/jpeg"):
		return FormatJPEG
	case strings.Contains(contentType, "image/gif"):
		return FormatGIF
	case strings.Contains(contentType, "image/bmp"):
		return FormatBMP
	case strings.Contains(contentType, "image/webp"):
		return FormatWEBP
	case strings.Contains(contentType, "audio/mpeg"):
		return FormatMP3
	case strings.Contains(contentType, "audio/wave"):
		return FormatWAV
	case strings.Contains(contentType, "video/mp4"):
		return FormatMP4
	}
	return FormatBinary
}

// IsImageFormat reports whether the format is a decodable still image
func IsImageFormat(format string) bool {
	switch format {
	case FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF:
		return true
	}
	return false
}

// ReadFileBytes reads a whole file, refusing files larger than maxSize (0 means no cap)
func ReadFileBytes(filePath string, maxSize int64) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	size := info.Size()
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("file too large (%d bytes, max %d)", size, maxSize)
	}

	content := make([]byte, size)
	_, err = io.ReadFull(file, content)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return content, nil
}

// SaveFile saves data to a file
func SaveFile(data []byte, filePath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	return nil
}
