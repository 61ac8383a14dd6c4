// Package scanner searches box payloads for flag-shaped tokens and long printable strings.
package scanner

import (
	"regexp"
	"strings"

	"FlagSift/pkg/box"
	"FlagSift/pkg/models"
)

// Hit kinds
const (
	KindFlag   = models.MatchKindFlag
	KindString = models.MatchKindString
)

// DefaultMinStringLength is the shortest printable run reported as a string.
const DefaultMinStringLength = 10

// DefaultMarkers are the flag prefixes searched when none are configured.
var DefaultMarkers = []string{"flag", "ctf", "picoctf"}

// Config controls what the scanner reports.
type Config struct {
	// Markers are matched case-insensitively in front of a "{...}" body.
	Markers         []string `yaml:"markers"`
	MinStringLength int      `yaml:"minStringLength"`
	// MaxMatchesPerBox caps the hits returned for one payload, 0 means no cap.
	MaxMatchesPerBox int `yaml:"maxMatchesPerBox"`
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	return Config{
		Markers:         append([]string(nil), DefaultMarkers...),
		MinStringLength: DefaultMinStringLength,
	}
}

// Hit is one match inside a payload.
type Hit struct {
	Kind   string
	Offset int
	Text   string
}

// Scanner holds a compiled Config. It is safe for concurrent use.
type Scanner struct {
	cfg  Config
	flag *regexp.Regexp
}

// New compiles cfg, filling zero fields with defaults.
func New(cfg Config) *Scanner {
	var markers []string
	for _, m := range cfg.Markers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	cfg.Markers = markers
	if cfg.MinStringLength <= 0 {
		cfg.MinStringLength = DefaultMinStringLength
	}
	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		quoted = append(quoted, regexp.QuoteMeta(m))
	}
	return &Scanner{
		cfg:  cfg,
		flag: regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)\{[^}]+\}`),
	}
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

// Scan reports flag tokens followed by printable runs, each group in offset order.
func (s *Scanner) Scan(payload []byte) []Hit {
	var hits []Hit
	for _, loc := range s.flag.FindAllIndex(payload, -1) {
		if s.full(hits) {
			return hits
		}
		hits = append(hits, Hit{Kind: KindFlag, Offset: loc[0], Text: string(payload[loc[0]:loc[1]])})
	}
	for _, loc := range PrintableRuns(payload, s.cfg.MinStringLength) {
		if s.full(hits) {
			return hits
		}
		hits = append(hits, Hit{Kind: KindString, Offset: loc[0], Text: string(payload[loc[0]:loc[1]])})
	}
	return hits
}

func (s *Scanner) full(hits []Hit) bool {
	return s.cfg.MaxMatchesPerBox > 0 && len(hits) >= s.cfg.MaxMatchesPerBox
}

// ScanBox scans the payload of b and tags every hit with the box position.
func (s *Scanner) ScanBox(b box.Box) []models.Match {
	matches := s.ScanData(b.Type.String(), b.FileOffset, b.Payload, "")
	for i := range matches {
		matches[i].Depth = b.Depth
	}
	return matches
}

// ScanData scans data that came from the box at boxOffset, source names the transform applied.
func (s *Scanner) ScanData(boxType string, boxOffset int64, data []byte, source string) []models.Match {
	hits := s.Scan(data)
	if len(hits) == 0 {
		return nil
	}
	matches := make([]models.Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, models.Match{
			BoxType:   boxType,
			BoxOffset: boxOffset,
			Kind:      h.Kind,
			Offset:    h.Offset,
			Text:      h.Text,
			Source:    source,
		})
	}
	return matches
}

// Scan is a one-shot helper around New(cfg).Scan.
func Scan(payload []byte, cfg Config) []Hit {
	return New(cfg).Scan(payload)
}

// ScanBox is a one-shot helper around New(cfg).ScanBox.
func ScanBox(b box.Box, cfg Config) []models.Match {
	return New(cfg).ScanBox(b)
}

// PrintableRuns returns [start, end) pairs of maximal runs of bytes 32..126 at least minLen long.
func PrintableRuns(data []byte, minLen int) [][2]int {
	var runs [][2]int
	start := -1
	for i, c := range data {
		if c >= 32 && c <= 126 {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			runs = append(runs, [2]int{start, i})
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= minLen {
		runs = append(runs, [2]int{start, len(data)})
	}
	return runs
}

// PrintableRatio returns the share of bytes 32..126 in data, 0 for empty data.
func PrintableRatio(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	n := 0
	for _, c := range data {
		if c >= 32 && c <= 126 {
			n++
		}
	}
	return float64(n) / float64(len(data))
}

// IsText reports whether data is non-empty and printable throughout.
func IsText(data []byte) bool {
	return len(data) > 0 && len(PrintableRuns(data, len(data))) == 1
}

// Dedup drops matches whose kind and text were already seen, keeping the first.
func Dedup(matches []models.Match) []models.Match {
	seen := make(map[string]bool, len(matches))
	out := matches[:0:0]
	for _, m := range matches {
		key := m.Kind + "\x00" + m.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}
