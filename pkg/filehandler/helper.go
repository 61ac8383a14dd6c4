package filehandler

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GatherFiles collects all files in a directory (non-recursive)
func GatherFiles(dirPath string) ([]string, error) {
	var files []string

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue // Skip directories
		}

		filePath := filepath.Join(dirPath, entry.Name())
		files = append(files, filePath)
	}

	return files, nil
}

// FilesInDirectory walks a directory tree and returns files with the given extensions
func FilesInDirectory(dirPath string, extensions []string) ([]string, error) {
	var files []string

	info, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dirPath)
	}

	err = filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		if len(extensions) == 0 {
			files = append(files, path)
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, validExt := range extensions {
			if ext == strings.ToLower(validExt) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}

// ReadLines reads a file and returns its lines
func ReadLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

// DownloadFromURL downloads a file from a URL to the specified directory
func DownloadFromURL(url, outputDir string) (string, error) {
	client := &http.Client{
		Timeout: 60 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	// Extract filename from URL
	urlParts := strings.Split(strings.SplitN(url, "?", 2)[0], "/")
	filename := urlParts[len(urlParts)-1]

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}

	outputPath, err := uniquePath(outputDir, filename)
	if err != nil {
		return "", err
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err = io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save downloaded file: %w", err)
	}

	return outputPath, nil
}

// uniquePath joins dir and name, prefixing name with random hex when it is empty or already taken
func uniquePath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if name != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	if name == "" {
		name = "download"
	}
	return uniquePath(dir, hex.EncodeToString(buf)+"_"+name)
}

// IsURL checks if the given string is a URL
func IsURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
