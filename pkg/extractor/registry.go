package extractor

import (
	"slices"
	"sort"
	"sync"
)

// AnyFormat in SupportedFormats registers an extractor for every format, e.g. a carver for
// data appended to any kind of file.
const AnyFormat = "*"

// Registry is a container for all available extractors
type Registry struct {
	extractors map[string][]DataExtractor
	universal  []DataExtractor
	mu         sync.RWMutex
}

// NewRegistry creates a new extractor registry
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[string][]DataExtractor),
	}
}

// Register adds an extractor to the registry
func (r *Registry) Register(extractor DataExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, format := range extractor.SupportedFormats() {
		if format == AnyFormat {
			r.universal = append(r.universal, extractor)
			continue
		}
		r.extractors[format] = append(r.extractors[format], extractor)
	}
}

// GetExtractorsForFormat returns the extractors registered for the format followed by the
// universal ones
func (r *Registry) GetExtractorsForFormat(format string) []DataExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specific := r.extractors[format]
	out := make([]DataExtractor, 0, len(specific)+len(r.universal))
	out = append(out, specific...)
	for _, e := range r.universal {
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

// Universal returns the extractors registered for every format
func (r *Registry) Universal() []DataExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.universal)
}

// GetExtractorByName finds an extractor with the given name usable for format
func (r *Registry) GetExtractorByName(name string, format string) DataExtractor {
	for _, e := range r.GetExtractorsForFormat(format) {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// GetSupportedFormats returns the formats with dedicated extractors, sorted.
// Universal extractors do not add formats.
func (r *Registry) GetSupportedFormats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]string, 0, len(r.extractors))
	for format := range r.extractors {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	return formats
}
