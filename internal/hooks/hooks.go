// Package hooks is the registry of file transforms applied after a binary
// file has been resolved from the patch stack.
//
// A hook is registered under a wildcard (see package glob). When a file is
// resolved, every hook whose wildcard matches the requested name runs in
// registration order, each receiving the output of the previous one and the
// file's resolved ".jdiff" document, if any.
package hooks

import (
	"sync"

	"github.com/rs/zerolog/log"

	"patchstack/internal/glob"
	"patchstack/internal/jsonval"
)

// Hook transforms resolved file contents. diff is the merged ".jdiff"
// document for fn, or nil. Returning nil data with a nil error leaves the
// input unchanged.
type Hook interface {
	Patch(fn string, data []byte, diff jsonval.Value) ([]byte, error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(fn string, data []byte, diff jsonval.Value) ([]byte, error)

func (f HookFunc) Patch(fn string, data []byte, diff jsonval.Value) ([]byte, error) {
	return f(fn, data, diff)
}

// Sizer is implemented by hooks that can grow a file. Size returns the
// number of bytes the hook may add given a diff of diffSize bytes.
type Sizer interface {
	Size(fn string, diff jsonval.Value, diffSize int) int
}

type entry struct {
	pattern *glob.Pattern
	hook    Hook
}

// Registry maps wildcards to hooks. The zero value is ready to use.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds h for names matching wildcard.
func (r *Registry) Register(wildcard string, h Hook) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{pattern: glob.Compile(wildcard), hook: h})
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Match returns the hooks registered for fn in registration order.
func (r *Registry) Match(fn string) []Hook {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Hook
	for _, e := range r.entries {
		if e.pattern.Match(fn) {
			out = append(out, e.hook)
		}
	}
	return out
}

// ExtraSize sums the growth estimates of the given hooks. Hooks without a
// Sizer are assumed to grow the file by at most diffSize.
func ExtraSize(list []Hook, fn string, diff jsonval.Value, diffSize int) int {
	n := 0
	for _, h := range list {
		if s, ok := h.(Sizer); ok {
			n += s.Size(fn, diff, diffSize)
		} else {
			n += diffSize
		}
	}
	return n
}

// Run applies list to data in order. A failing hook is logged and its output
// discarded. changed reports whether any hook produced new contents.
func Run(list []Hook, fn string, data []byte, diff jsonval.Value) (out []byte, changed bool) {
	out = data
	for i, h := range list {
		next, err := h.Patch(fn, out, diff)
		if err != nil {
			log.Warn().Err(err).Str("file", fn).Int("hook", i).Msg("patch hook failed")
			continue
		}
		if next != nil {
			out = next
			changed = true
		}
	}
	return out, changed
}

// Run matches fn and applies the matching hooks.
func (r *Registry) Run(fn string, data []byte, diff jsonval.Value) ([]byte, bool) {
	return Run(r.Match(fn), fn, data, diff)
}
