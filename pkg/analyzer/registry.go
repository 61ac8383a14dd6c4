package analyzer

import (
	"sort"
	"sync"
)

// Registry is a container for all available analyzers
type Registry struct {
	analyzers map[string][]FileAnalyzer
	fallback  FileAnalyzer
	mu        sync.RWMutex
}

// NewRegistry creates a new analyzer registry
func NewRegistry() *Registry {
	return &Registry{
		analyzers: make(map[string][]FileAnalyzer),
	}
}

// Register adds an analyzer to the registry
func (r *Registry) Register(analyzer FileAnalyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, format := range analyzer.SupportedFormats() {
		r.analyzers[format] = append(r.analyzers[format], analyzer)
	}
}

// SetFallback sets the analyzer used for formats nothing else claims
func (r *Registry) SetFallback(analyzer FileAnalyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fallback = analyzer
}

// GetAnalyzersForFormat returns all analyzers that support the given format,
// or the fallback analyzer when there are none
func (r *Registry) GetAnalyzersForFormat(format string) []FileAnalyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if list := r.analyzers[format]; len(list) > 0 {
		return list
	}
	if r.fallback != nil {
		return []FileAnalyzer{r.fallback}
	}
	return nil
}

// GetSupportedFormats returns a sorted list of all supported formats
func (r *Registry) GetSupportedFormats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]string, 0, len(r.analyzers))
	for format := range r.analyzers {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	return formats
}
