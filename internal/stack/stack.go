// Package stack resolves game files against an ordered patch stack.
//
// Index 0 is the lowest priority. Binary files are resolved from the highest
// priority patch downwards and the first patch that has the file, without
// ignoring it, wins outright. JSON files are resolved from the lowest
// priority patch upwards and every contribution is merged on top of the
// previous ones (see jsonval.Merge).
//
// A Stack is immutable once built and safe for concurrent use. Use Manager
// to swap stacks while queries are in flight.
package stack

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"patchstack/internal/fsutil"
	"patchstack/internal/hooks"
	"patchstack/internal/jsonval"
	"patchstack/internal/patch"
)

// ErrNotFound is returned when no patch in the stack provides a file.
var ErrNotFound = patch.ErrNotFound

// DiffSuffix is appended to a file name to find the JSON document passed to
// that file's hooks.
const DiffSuffix = ".jdiff"

// Options configures name resolution.
type Options struct {
	// Game prefixes game-relative names ("<game>/<fn>").
	Game string
	// Build selects build-specific variants ("name.<build>.ext").
	Build string
	// Hooks transform binary files resolved through ResolveFile.
	Hooks *hooks.Registry
}

// Stack is an ordered list of patches.
type Stack struct {
	patches []*patch.Patch
	opts    Options
}

// New returns a stack holding patches in the given order. Inert patches are
// kept as no-op slots so indices match the run configuration.
func New(opts Options, patches ...*patch.Patch) *Stack {
	ps := make([]*patch.Patch, len(patches))
	copy(ps, patches)
	return &Stack{patches: ps, opts: opts}
}

// Len returns the number of patches.
func (s *Stack) Len() int { return len(s.patches) }

// Patches returns the patches in stack order.
func (s *Stack) Patches() []*patch.Patch {
	out := make([]*patch.Patch, len(s.patches))
	copy(out, s.patches)
	return out
}

// Patch returns the patch at index i.
func (s *Stack) Patch(i int) *patch.Patch { return s.patches[i] }

// Options returns the resolution options.
func (s *Stack) Options() Options { return s.opts }

// Result is a resolved binary file.
type Result struct {
	Data []byte
	// Index is the position of the owning patch in the stack.
	Index int
	Patch *patch.Patch
	// Name is the chain entry that matched (fn or its build variant).
	Name string
}

// Chain returns the names tried for fn: fn itself and, when a build is
// configured, the build-specific variant.
func (s *Stack) Chain(fn string) []string {
	if s.opts.Build == "" {
		return []string{fn}
	}
	return []string{fn, ForBuild(fn, s.opts.Build)}
}

// ForBuild inserts ".<build>" before the first '.' of fn's base name.
func ForBuild(fn, build string) string {
	dir, base := "", fn
	if i := strings.LastIndexAny(fn, `/\`); i >= 0 {
		dir, base = fn[:i+1], fn[i+1:]
	}
	name, ext := base, ""
	if i := strings.IndexByte(base, '.'); i >= 0 {
		name, ext = base[:i], base[i:]
	}
	return dir + name + "." + build + ext
}

// BaseOf reverses ForBuild: it reports the generic name fn specializes for
// build, if any.
func BaseOf(fn, build string) (string, bool) {
	if build == "" {
		return "", false
	}
	dir, base := "", fn
	if i := strings.LastIndexAny(fn, `/\`); i >= 0 {
		dir, base = fn[:i+1], fn[i+1:]
	}
	i := strings.IndexByte(base, '.')
	if i < 0 {
		return "", false
	}
	rest := strings.TrimPrefix(base[i:], "."+build)
	if len(rest) == len(base[i:]) || (rest != "" && rest[0] != '.') {
		return "", false
	}
	return dir + base[:i] + rest, true
}

// ForGame prefixes fn with the configured game id.
func (s *Stack) ForGame(fn string) string {
	if s.opts.Game == "" {
		return fn
	}
	return s.opts.Game + "/" + fn
}

// ResolveBinary returns the contents of fn from the highest priority patch
// that has it and does not ignore it. Within a patch, the build-specific
// variant is preferred.
func (s *Stack) ResolveBinary(fn string) (Result, error) {
	chain := s.Chain(fn)
	for i := len(s.patches) - 1; i >= 0; i-- {
		p := s.patches[i]
		if p.IsInert() {
			continue
		}
		for c := len(chain) - 1; c >= 0; c-- {
			name := chain[c]
			if !p.FileExists(name) {
				continue
			}
			data, err := p.LoadFile(name)
			if err != nil {
				log.Warn().Err(err).Str("patch", p.Name()).Str("file", name).Msg("unreadable patch file")
				continue
			}
			trace(p, name)
			return Result{Data: data, Index: i, Patch: p, Name: name}, nil
		}
	}
	log.Debug().Str("file", fn).Msg("binary not found")
	return Result{}, fmt.Errorf("%s: %w", fn, ErrNotFound)
}

// ResolveJSON merges fn from every patch that has it, lowest priority first.
// Ignore lists are not consulted. A fragment that fails to parse is logged and
// skipped.
func (s *Stack) ResolveJSON(fn string) (jsonval.Value, error) {
	v, _, err := s.ResolveJSONSized(fn)
	return v, err
}

// ResolveJSONSized is ResolveJSON that also reports the total size of the
// contributing fragments.
func (s *Stack) ResolveJSONSized(fn string) (jsonval.Value, int, error) {
	var acc jsonval.Value
	total := 0
	for _, p := range s.patches {
		if p.IsInert() {
			continue
		}
		for _, name := range s.Chain(fn) {
			next, size, err := p.MergeJSON(acc, name)
			if err != nil {
				logFragmentError(p, name, err)
				continue
			}
			trace(p, name)
			acc = next
			total += size
		}
	}
	if acc == nil {
		log.Debug().Str("file", fn).Msg("json not found")
		return nil, 0, fmt.Errorf("%s: %w", fn, ErrNotFound)
	}
	return acc, total, nil
}

// ResolveGameBinary resolves "<game>/<fn>".
func (s *Stack) ResolveGameBinary(fn string) (Result, error) {
	return s.ResolveBinary(s.ForGame(fn))
}

// ResolveGameJSON resolves "<game>/<fn>".
func (s *Stack) ResolveGameJSON(fn string) (jsonval.Value, error) {
	return s.ResolveJSON(s.ForGame(fn))
}

// PatchGameFile runs the hooks registered for fn over data, passing them the
// resolved "<game>/<fn>.jdiff" document. data is typically the game's own
// copy of the file. The bool reports whether any hook changed it.
func (s *Stack) PatchGameFile(fn string, data []byte) ([]byte, bool) {
	list := s.opts.Hooks.Match(fn)
	if len(list) == 0 {
		return data, false
	}
	diff, err := s.ResolveGameJSON(fn + DiffSuffix)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Warn().Err(err).Str("file", fn).Msg("diff unavailable")
	}
	return hooks.Run(list, fn, data, diff)
}

// GameFileSize estimates the size of the game file fn after its hooks run,
// given its unpatched size. Hooks without an estimate may grow the file by
// the size of the "<game>/<fn>.jdiff" fragments.
func (s *Stack) GameFileSize(fn string, size int) int {
	list := s.opts.Hooks.Match(fn)
	if len(list) == 0 {
		return size
	}
	diff, diffSize, err := s.ResolveJSONSized(s.ForGame(fn + DiffSuffix))
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Warn().Err(err).Str("file", fn).Msg("diff unavailable")
	}
	return size + hooks.ExtraSize(list, fn, diff, diffSize)
}

// ResolveFile resolves the game file fn from the stack and runs its hooks.
func (s *Stack) ResolveFile(fn string) (Result, error) {
	res, err := s.ResolveGameBinary(fn)
	if err != nil {
		return res, err
	}
	res.Data, _ = s.PatchGameFile(fn, res.Data)
	return res, nil
}

// MissingArchives returns, in stack order, the archives that do not exist.
func (s *Stack) MissingArchives() []string {
	var out []string
	for _, p := range s.patches {
		if p.IsInert() {
			continue
		}
		if !fsutil.Exists(p.Archive) {
			out = append(out, p.Archive)
		}
	}
	return out
}

// CoveredBy reports whether the patch with the given id ships "<game>.js",
// i.e. explicitly supports the configured game.
func (s *Stack) CoveredBy(patchID string) bool {
	if s.opts.Game == "" {
		return false
	}
	for _, p := range s.patches {
		if !p.IsInert() && p.ID == patchID {
			return p.FileExists(s.opts.Game + ".js")
		}
	}
	return false
}

func logFragmentError(p *patch.Patch, name string, err error) {
	switch {
	case errors.Is(err, patch.ErrNotFound):
	case patch.IsMalformed(err):
		log.Warn().Err(err).Str("patch", p.Name()).Str("file", name).Msg("skipping malformed fragment")
	default:
		log.Warn().Err(err).Str("patch", p.Name()).Str("file", name).Msg("skipping unreadable fragment")
	}
}

func trace(p *patch.Patch, name string) {
	ev := log.Debug()
	if !ev.Enabled() {
		return
	}
	ev.Msg(strings.Repeat(" ", p.Level+1) + "+ " + p.Path(name))
}
