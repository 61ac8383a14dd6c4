package box

import (
	"bytes"
	"iter"
)

// DefaultMaxDepth bounds container recursion.
const DefaultMaxDepth = 32

// Options configures a walk.
type Options struct {
	// Containers lists the types walked recursively, DefaultContainers when nil.
	Containers []BoxType
	Overrun    OverrunPolicy
	MaxDepth   int
}

type frame struct {
	buf    []byte
	base   int64
	pos    int
	depth  int
	parent BoxType
}

// Walker produces the boxes of a buffer depth-first, parents before their children.
//
// Typical usage:
//
//	w := box.NewWalker(data, box.Options{})
//	for w.Next() {
//	    b := w.Box()
//	    ...
//	}
//	for _, err := range w.Errs() { ... }
//
// A header that cannot be read ends the walk of its own nesting level only; the error is
// recorded and the walk resumes after the enclosing container.
type Walker struct {
	root       []byte
	containers map[BoxType]bool
	overrun    OverrunPolicy
	maxDepth   int

	stack []frame
	cur   Box
	errs  []*WalkError
}

// NewWalker creates a Walker over buf. buf must not change while it is walked.
func NewWalker(buf []byte, opts Options) *Walker {
	containers := opts.Containers
	if containers == nil {
		containers = DefaultContainers
	}
	w := &Walker{
		root:       buf,
		containers: make(map[BoxType]bool, len(containers)),
		overrun:    opts.Overrun,
		maxDepth:   opts.MaxDepth,
	}
	if w.maxDepth <= 0 {
		w.maxDepth = DefaultMaxDepth
	}
	for _, t := range containers {
		w.containers[t] = true
	}
	w.Reset()
	return w
}

// Reset rewinds the walker to the start of the buffer.
func (w *Walker) Reset() {
	w.stack = append(w.stack[:0], frame{buf: w.root})
	w.cur = Box{}
	w.errs = nil
}

// Next advances to the next box. It returns false once every level is exhausted.
func (w *Walker) Next() bool {
	for len(w.stack) > 0 {
		f := &w.stack[len(w.stack)-1]
		if f.pos >= len(f.buf) {
			w.pop()
			continue
		}

		h, err := ReadHeaderPolicy(f.buf, f.pos, w.overrun)
		if err != nil {
			w.errs = append(w.errs, &WalkError{
				Depth:      f.depth,
				Offset:     int64(f.pos),
				FileOffset: f.base + int64(f.pos),
				Parent:     f.parent,
				Err:        err,
			})
			w.pop()
			continue
		}

		end := f.pos + int(h.Size)
		b := Box{
			Type:       h.Type,
			Offset:     int64(f.pos),
			FileOffset: f.base + int64(f.pos),
			Size:       h.Size,
			HeaderSize: h.HeaderSize,
			Depth:      f.depth,
			Truncated:  h.Truncated,
			Payload:    f.buf[f.pos+h.HeaderSize : end : end],
		}
		f.pos = end
		depth := f.depth

		if w.containers[b.Type] && depth+1 <= w.maxDepth {
			child := b.Payload
			skip := 0
			if b.Type == TypeMeta && isFullBoxPrefix(child) {
				skip = 4
			}
			b.Container = true
			w.stack = append(w.stack, frame{
				buf:    child[skip:],
				base:   b.FileOffset + int64(b.HeaderSize+skip),
				depth:  depth + 1,
				parent: b.Type,
			})
		}

		w.cur = b
		return true
	}
	return false
}

// Box returns the current box. Only valid after Next returns true.
func (w *Walker) Box() Box {
	return w.cur
}

// Errs returns the reasons each level stopped early, in the order they happened.
func (w *Walker) Errs() []*WalkError {
	return w.errs
}

func (w *Walker) pop() {
	w.stack = w.stack[:len(w.stack)-1]
}

// isFullBoxPrefix reports whether a meta payload starts with ISO version and flags.
// QuickTime meta boxes start directly with a child header whose size is never zero.
func isFullBoxPrefix(payload []byte) bool {
	return len(payload) >= 4 && bytes.Equal(payload[:4], []byte{0, 0, 0, 0})
}

// Boxes returns a restartable sequence over the boxes of buf. Walk errors are dropped.
func Boxes(buf []byte, opts Options) iter.Seq[Box] {
	return func(yield func(Box) bool) {
		w := NewWalker(buf, opts)
		for w.Next() {
			if !yield(w.Box()) {
				return
			}
		}
	}
}

// Walk collects every box of buf along with the errors that cut levels short.
func Walk(buf []byte, opts Options) ([]Box, []*WalkError) {
	w := NewWalker(buf, opts)
	var boxes []Box
	for w.Next() {
		boxes = append(boxes, w.Box())
	}
	return boxes, w.Errs()
}
