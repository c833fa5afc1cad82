package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/rs/zerolog/log"

	"patchstack/internal/diff"
	"patchstack/internal/graph"
	"patchstack/internal/stack"
)

// Options controls Collect.
type Options struct {
	// Layers adds a per-patch diff for every JSON file merged from more than
	// one fragment.
	Layers bool
	Diff   diff.Options
}

// Export is a collected stack, ready to be written.
type Export struct {
	Manifest Manifest
	// LayerDiffs maps a file name under layers/ to its body.
	LayerDiffs map[string]string

	data map[string][]byte
}

// Data returns the exported content of the manifest file p.
func (e *Export) Data(p string) ([]byte, bool) {
	b, ok := e.data[p]
	return b, ok
}

// Collect resolves every file provided by s. Build variants are folded into
// the generic name they specialize, which is exported even when only the
// variant exists.
func Collect(s *stack.Stack, opts Options) (*Export, error) {
	entries, err := s.Listing(stack.ListOptions{})
	if err != nil {
		return nil, err
	}

	exp := &Export{
		Manifest: Manifest{
			Version: ManifestVersion,
			Game:    s.Options().Game,
			Build:   s.Options().Build,
		},
		LayerDiffs: map[string]string{},
		data:       map[string][]byte{},
	}
	for i, p := range s.Patches() {
		mp := ManPatch{Index: i, Inert: p.IsInert()}
		if !mp.Inert {
			mp.Label, mp.Title = graph.Label(p), p.Title
		}
		exp.Manifest.Patches = append(exp.Manifest.Patches, mp)
	}

	names := exportNames(entries, s.Options().Build)

	usedNames := map[string]struct{}{}
	for _, name := range names {
		var (
			mf  ManFile
			out []byte
		)
		if IsJSONName(name) {
			layers, err := s.Layers(name)
			if errors.Is(err, stack.ErrNotFound) {
				log.Warn().Str("file", name).Msg("no usable fragment, not exported")
				continue
			}
			if err != nil {
				return nil, err
			}
			if out, err = diff.Render(layers[len(layers)-1].Result); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			mf = ManFile{Path: name, Kind: KindJSON}
			for _, l := range layers {
				if n := len(mf.Sources); n == 0 || mf.Sources[n-1] != l.Index {
					mf.Sources = append(mf.Sources, l.Index)
				}
			}
			if opts.Layers && len(layers) > 1 {
				body, err := LayerDiff(name, layers, opts.Diff)
				if err != nil {
					return nil, err
				}
				diffName := uniquePatchName(safeDiffBase(name), shortHash(name), usedNames)
				exp.LayerDiffs[diffName] = body
				mf.Layers = path.Join("layers", diffName)
			}
		} else {
			res, err := s.ResolveBinary(name)
			if errors.Is(err, stack.ErrNotFound) {
				exp.Manifest.Ignored = append(exp.Manifest.Ignored, name)
				continue
			}
			if err != nil {
				return nil, err
			}
			out = res.Data
			mf = ManFile{Path: name, Kind: KindBinary, Sources: []int{res.Index}}
		}
		sum := sha256.Sum256(out)
		mf.Size = len(out)
		mf.Hash = hex.EncodeToString(sum[:])
		exp.Manifest.Files = append(exp.Manifest.Files, mf)
		exp.data[name] = out
	}
	log.Debug().
		Int("files", len(exp.Manifest.Files)).
		Int("ignored", len(exp.Manifest.Ignored)).
		Int("layers", len(exp.LayerDiffs)).
		Msg("stack collected")
	return exp, nil
}

// exportNames returns the sorted, distinct names Collect resolves.
func exportNames(entries []stack.Entry, build string) []string {
	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if base, ok := stack.BaseOf(name, build); ok {
			name = base
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
