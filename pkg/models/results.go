package models

import (
	"time"
)

// AnalysisResult contains the results of one file analysis
type AnalysisResult struct {
	FileType          string                 `json:"fileType"`
	Filename          string                 `json:"filename"`
	Analyzer          string                 `json:"analyzer"`
	DetectionScore    float64                `json:"detectionScore"` // 0.0-1.0 where 1.0 means a flag was found
	Confidence        float64                `json:"confidence"`     // 0.0-1.0 confidence in the detection score
	PossibleAlgorithm string                 `json:"possibleAlgorithm,omitempty"`
	Details           map[string]interface{} `json:"details"`
	Findings          []Finding              `json:"findings"`
	Recommendations   []string               `json:"recommendations"`
	ExtractionHints   []ExtractionHint       `json:"extractionHints,omitempty"`
	Boxes             []BoxRecord            `json:"boxes,omitempty"`
	Matches           []Match                `json:"matches"`
	WalkErrors        []string               `json:"walkErrors,omitempty"`
	AnalysisTime      time.Time              `json:"analysisTime"`
	AnalysisDuration  time.Duration          `json:"analysisDuration"`
}

// Finding represents a specific detection or discovery during analysis
type Finding struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"` // 0.0-1.0
	Details     string  `json:"details"`
}

// ExtractionHint provides guidance for data extraction
type ExtractionHint struct {
	Algorithm  string                 `json:"algorithm"`
	Confidence float64                `json:"confidence"`
	Parameters map[string]interface{} `json:"parameters"`
}

// BoxRecord is the serialisable part of a walked box
type BoxRecord struct {
	Type       string `json:"type"`
	Offset     int64  `json:"offset"`
	FileOffset int64  `json:"fileOffset"`
	Size       uint64 `json:"size"`
	HeaderSize int    `json:"headerSize"`
	Depth      int    `json:"depth"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// Match kinds
const (
	MatchKindFlag   = "flag"
	MatchKindString = "string"
)

// Match is a (box type, box offset, matched text) triple.
// Source names the transform the payload went through, empty for the raw bytes.
type Match struct {
	BoxType   string `json:"boxType"`
	BoxOffset int64  `json:"boxOffset"`
	Depth     int    `json:"depth"`
	Kind      string `json:"kind"`
	Offset    int    `json:"offset"`
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
}

// ExtractionResult contains the results of an extraction attempt
type ExtractionResult struct {
	Success       bool                   `json:"success"`
	FileType      string                 `json:"fileType"`
	Algorithm     string                 `json:"algorithm"`
	DataType      string                 `json:"dataType"`      // text, binary, image, etc.
	ExtractedData []byte                 `json:"extractedData"` // The raw extracted data
	DataSize      int                    `json:"dataSize"`
	Score         float64                `json:"score"`
	Details       map[string]interface{} `json:"details"`
	OutputFiles   []string               `json:"outputFiles"` // Paths to any saved output files
	MimeType      string                 `json:"mimeType"`
}

// NewAnalysisResult creates an empty result stamped with the current time
func NewAnalysisResult(filename, fileType, analyzer string) *AnalysisResult {
	return &AnalysisResult{
		FileType:        fileType,
		Filename:        filename,
		Analyzer:        analyzer,
		Details:         map[string]interface{}{},
		Findings:        []Finding{},
		Recommendations: []string{},
		Matches:         []Match{},
		AnalysisTime:    time.Now(),
	}
}

// AddFinding adds a finding to the analysis result
func (r *AnalysisResult) AddFinding(description string, confidence float64, details string) {
	r.Findings = append(r.Findings, Finding{
		Description: description,
		Confidence:  confidence,
		Details:     details,
	})
}

// AddExtractionHint adds an extraction hint to the analysis result
func (r *AnalysisResult) AddExtractionHint(algorithm string, confidence float64, parameters map[string]interface{}) {
	r.ExtractionHints = append(r.ExtractionHints, ExtractionHint{
		Algorithm:  algorithm,
		Confidence: confidence,
		Parameters: parameters,
	})
}

// AddMatches appends scanner matches to the result
func (r *AnalysisResult) AddMatches(matches ...Match) {
	r.Matches = append(r.Matches, matches...)
}

// Flags returns the flag-shaped matches only
func (r *AnalysisResult) Flags() []Match {
	var flags []Match
	for _, m := range r.Matches {
		if m.Kind == MatchKindFlag {
			flags = append(flags, m)
		}
	}
	return flags
}

// GetHighestConfidenceAlgorithm returns the extraction algorithm with highest confidence
func (r *AnalysisResult) GetHighestConfidenceAlgorithm() (string, float64, map[string]interface{}) {
	if len(r.ExtractionHints) == 0 {
		return "", 0.0, nil
	}

	best := r.ExtractionHints[0]
	for _, hint := range r.ExtractionHints {
		if hint.Confidence > best.Confidence {
			best = hint
		}
	}

	return best.Algorithm, best.Confidence, best.Parameters
}
