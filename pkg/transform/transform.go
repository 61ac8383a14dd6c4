// Package transform holds the decoding heuristics applied to a payload before it is scanned
// again. Each heuristic is named and parameterised so a whole sweep can be described as a list
// of Spec values, usually loaded from the config file.
package transform

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
)

// ErrUnknownTransform is returned when a Spec names a transform nobody registered
var ErrUnknownTransform = errors.New("unknown transform")

// Output is one decoded view of the input.
type Output struct {
	// Label identifies the variant, e.g. "xor:0x20" or "base64@128".
	Label string
	// Data may be reused by the transform once the consumer asks for the next output.
	Data []byte
}

// Transform turns a payload into zero or more decoded views of it.
// Outputs are produced lazily so only one of them needs to be alive at a time.
type Transform interface {
	Name() string
	Apply(data []byte) iter.Seq[Output]
}

// Collect drains seq, copying every output so it outlives the iteration.
func Collect(seq iter.Seq[Output]) []Output {
	var outputs []Output
	for out := range seq {
		outputs = append(outputs, Output{Label: out.Label, Data: append([]byte(nil), out.Data...)})
	}
	return outputs
}

// Spec is a declarative (transform, parameters) pair.
type Spec struct {
	Name   string `yaml:"name" json:"name"`
	Params Params `yaml:"params,omitempty" json:"params,omitempty"`
}

// Factory builds a transform from its parameters
type Factory func(params Params) (Transform, error)

// Registry maps transform names to factories
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry holding every built-in transform
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("base64", newBase64)
	r.Register("hex", newHex)
	r.Register("xor", newXOR)
	r.Register("caesar", newCaesar)
	r.Register("reverse", newReverse)
	r.Register("lsb", newLSB)
	return r
}

// Register adds a factory, replacing any previous one with the same name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
}

// Build instantiates the transform described by spec
func (r *Registry) Build(spec Spec) (Transform, error) {
	r.mu.RLock()
	factory, ok := r.factories[spec.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, spec.Name)
	}
	t, err := factory(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("transform %q: %w", spec.Name, err)
	}
	return t, nil
}

// Names returns the registered transform names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pipeline applies a list of transforms independently to the same input.
type Pipeline struct {
	transforms []Transform
}

// NewPipeline builds every spec with reg. An unknown or invalid spec fails the whole pipeline.
func NewPipeline(reg *Registry, specs []Spec) (*Pipeline, error) {
	p := &Pipeline{}
	for _, spec := range specs {
		t, err := reg.Build(spec)
		if err != nil {
			return nil, err
		}
		p.transforms = append(p.transforms, t)
	}
	return p, nil
}

// Len returns the number of transforms in the pipeline
func (p *Pipeline) Len() int {
	return len(p.transforms)
}

// Run yields the outputs of every transform in order. Empty outputs are dropped.
// An output's Data is only valid until the loop body returns.
func (p *Pipeline) Run(data []byte) iter.Seq[Output] {
	return func(yield func(Output) bool) {
		for _, t := range p.transforms {
			for out := range t.Apply(data) {
				if len(out.Data) == 0 {
					continue
				}
				if !yield(out) {
					return
				}
			}
		}
	}
}

// DefaultSpecs is the sweep used when the config does not name one.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "base64", Params: Params{"minLength": 30, "maxMatches": 50}},
		{Name: "hex", Params: Params{"minLength": 40, "maxMatches": 50}},
		{Name: "xor", Params: Params{
			"keys":   []string{"flag", "FLAG", "ctf", "CTF", "key", "KEY", "secret", "SECRET"},
			"single": true,
			"limit":  10000,
		}},
		{Name: "caesar", Params: Params{"limit": 1 << 16}},
		{Name: "reverse", Params: Params{"limit": 1 << 20}},
		{Name: "lsb", Params: Params{"bits": []int{0}, "limit": 1 << 20}},
	}
}
