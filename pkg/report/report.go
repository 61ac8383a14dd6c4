// Package report prints analysis results for people (colored text) and for tools (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"

	"FlagSift/pkg/models"
)

var (
	// Color printers
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

// MaxStrings is how many printable strings a result lists without Verbose
const MaxStrings = 20

// Printer writes status lines and reports to one writer
type Printer struct {
	w       io.Writer
	verbose bool
}

// NewPrinter creates a printer. Verbose adds finding details, every string and a dump of the result details.
func NewPrinter(w io.Writer, verbose bool) *Printer {
	return &Printer{w: w, verbose: verbose}
}

func (p *Printer) line(tag, format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

// Info prints a [*] line
func (p *Printer) Info(format string, args ...interface{}) {
	p.line(infoColor("[*]"), format, args...)
}

// Success prints a [+] line
func (p *Printer) Success(format string, args ...interface{}) {
	p.line(successColor("[+]"), format, args...)
}

// Warning prints a [!] line
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line(warningColor("[!]"), format, args...)
}

// Error prints a [-] line
func (p *Printer) Error(format string, args ...interface{}) {
	p.line(errorColor("[-]"), format, args...)
}

// Alert prints a [!!!] line
func (p *Printer) Alert(format string, args ...interface{}) {
	p.line(alertColor("[!!!]"), format, args...)
}

// Result prints one analysis result
func (p *Printer) Result(result *models.AnalysisResult) {
	fmt.Fprintln(p.w, "\n--- Analysis Results ---")
	fmt.Fprintf(p.w, "File: %s\n", result.Filename)
	fmt.Fprintf(p.w, "Format: %s (%s)\n", result.FileType, result.Analyzer)

	flags := result.Flags()
	switch {
	case len(flags) > 0:
		p.Alert("%d flag candidate(s) found", len(flags))
		for _, m := range flags {
			p.Alert("%s", describeMatch(m))
		}
	case result.DetectionScore > 0.5:
		p.Warning("Suspicious content, no flag found (%.2f)", result.DetectionScore)
	case result.DetectionScore > 0.2:
		p.Info("Minor anomalies (%.2f)", result.DetectionScore)
	default:
		p.Success("Nothing hidden found (%.2f)", result.DetectionScore)
	}

	if len(result.Boxes) > 0 {
		fmt.Fprintf(p.w, "Boxes: %d\n", len(result.Boxes))
		if p.verbose {
			for _, b := range result.Boxes {
				fmt.Fprintf(p.w, "  %*s%s @%d size=%d\n", b.Depth*2, "", b.Type, b.FileOffset, b.Size)
			}
		}
	}

	if algorithm, confidence, params := result.GetHighestConfidenceAlgorithm(); algorithm != "" {
		fmt.Fprintf(p.w, "Extraction candidates: %d, best %s (%.2f)", len(result.ExtractionHints), algorithm, confidence)
		if offset, ok := params["file_offset"]; ok {
			fmt.Fprintf(p.w, " at offset %v", offset)
		}
		fmt.Fprintln(p.w)
		if p.verbose {
			for _, hint := range result.ExtractionHints {
				fmt.Fprintf(p.w, "  %s (%.2f)\n", hint.Algorithm, hint.Confidence)
			}
		}
	}

	if strs := printableStrings(result); len(strs) > 0 {
		fmt.Fprintln(p.w, "\nStrings:")
		for i, m := range strs {
			if !p.verbose && i == MaxStrings {
				fmt.Fprintf(p.w, "  ... %d more (use --verbose)\n", len(strs)-MaxStrings)
				break
			}
			fmt.Fprintf(p.w, "  [%s@%d+%d] %q\n", m.BoxType, m.BoxOffset, m.Offset, m.Text)
		}
	}

	if len(result.Findings) > 0 {
		fmt.Fprintln(p.w, "\nFindings:")
		for i, finding := range result.Findings {
			fmt.Fprintf(p.w, "%d. %s (Confidence: %.2f)\n", i+1, finding.Description, finding.Confidence)
			if p.verbose && finding.Details != "" {
				fmt.Fprintf(p.w, "   Details: %s\n", finding.Details)
			}
		}
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintln(p.w, "\nRecommendations:")
		for i, rec := range result.Recommendations {
			fmt.Fprintf(p.w, "%d. %s\n", i+1, rec)
		}
	}

	if p.verbose && len(result.Details) > 0 {
		fmt.Fprintln(p.w, "\nDetails:")
		spew.Fdump(p.w, result.Details)
	}

	fmt.Fprintln(p.w, "-------------------------")
}

func describeMatch(m models.Match) string {
	s := fmt.Sprintf("%s in %s box at offset %d", m.Text, m.BoxType, m.BoxOffset)
	if m.Source != "" {
		s += " via " + m.Source
	}
	return s
}

func printableStrings(result *models.AnalysisResult) []models.Match {
	var out []models.Match
	for _, m := range result.Matches {
		if m.Kind == models.MatchKindString {
			out = append(out, m)
		}
	}
	return out
}

// Summary prints totals over a batch of results and lists every flag found
func (p *Printer) Summary(results []*models.AnalysisResult) {
	var clean, suspicious, flagged int
	for _, result := range results {
		switch {
		case len(result.Flags()) > 0:
			flagged++
		case result.DetectionScore >= 0.2:
			suspicious++
		default:
			clean++
		}
	}

	fmt.Fprintln(p.w, "\n=== Analysis Summary ===")
	fmt.Fprintf(p.w, "Total files analyzed: %d\n", len(results))
	fmt.Fprintf(p.w, "%s Clean files: %d\n", successColor("[+]"), clean)
	if suspicious > 0 {
		fmt.Fprintf(p.w, "%s Suspicious files: %d\n", warningColor("[!]"), suspicious)
	}
	if flagged == 0 {
		return
	}

	fmt.Fprintf(p.w, "%s Files with flags: %d\n", alertColor("[!!!]"), flagged)
	fmt.Fprintln(p.w, "\nFlags:")
	seen := map[string]bool{}
	var lines []string
	for _, result := range results {
		for _, m := range result.Flags() {
			line := fmt.Sprintf("- %s (%s)", m.Text, result.Filename)
			if !seen[line] {
				seen[line] = true
				lines = append(lines, line)
			}
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(p.w, line)
	}
}

// JSON writes the results as one indented JSON array
func JSON(w io.Writer, results []*models.AnalysisResult) error {
	if results == nil {
		results = []*models.AnalysisResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
