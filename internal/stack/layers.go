package stack

import (
	"fmt"

	"patchstack/internal/jsonval"
	"patchstack/internal/patch"
)

// Layer is one contribution to a resolved JSON file.
type Layer struct {
	Index int
	Patch *patch.Patch
	// Name is the chain entry the fragment was loaded from.
	Name     string
	Fragment jsonval.Value
	// Result is the merged value after this layer was applied.
	Result jsonval.Value
}

// Layers resolves fn like ResolveJSON and reports every fragment that took
// part, in merge order. The last layer's Result equals ResolveJSON(fn).
func (s *Stack) Layers(fn string) ([]Layer, error) {
	var (
		out []Layer
		acc jsonval.Value
	)
	for i, p := range s.patches {
		if p.IsInert() {
			continue
		}
		for _, name := range s.Chain(fn) {
			frag, err := p.LoadJSON(name)
			if err != nil {
				logFragmentError(p, name, err)
				continue
			}
			if acc == nil {
				acc = jsonval.DeepCopy(frag)
			} else {
				acc = jsonval.Merge(acc, frag)
			}
			out = append(out, Layer{
				Index:    i,
				Patch:    p,
				Name:     name,
				Fragment: frag,
				Result:   jsonval.DeepCopy(acc),
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", fn, ErrNotFound)
	}
	return out, nil
}
