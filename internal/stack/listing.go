package stack

import (
	"errors"
	"io/fs"
	"sort"

	"github.com/rs/zerolog/log"

	"patchstack/internal/patch"
	"patchstack/internal/walkwalk"
)

// ListOptions controls Listing.
type ListOptions struct {
	// Hash fills in the sha256 of every listed file.
	Hash bool
	// Gitignore hides files matched by an archive's own .gitignore.
	Gitignore bool
}

// Entry is one file name provided by at least one patch of the stack.
type Entry struct {
	Name string
	// Owner is the index of the patch ResolveBinary(Name) loads from, or -1
	// when every copy is ignored. With a build configured, the owner may hold
	// only the build variant of Name.
	Owner int
	// Providers lists, in stack order, every patch index holding Name.
	Providers []int
	Files     []walkwalk.FileInfo

	owner *walkwalk.FileInfo
}

// Listing walks every archive and reports which patch provides each file.
// Descriptors (patch.js) are left out. Missing archives are skipped.
func (s *Stack) Listing(opts ListOptions) ([]Entry, error) {
	byName := map[string]*Entry{}
	for i, p := range s.patches {
		if p.IsInert() {
			continue
		}
		files, err := walkwalk.CollectArchive(p.Archive, walkwalk.Options{
			Ignore:       p.Ignore,
			Exclude:      map[string]struct{}{patch.DescriptorFile: {}},
			UseGitignore: opts.Gitignore,
			Hash:         opts.Hash,
		})
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, f := range files {
			e := byName[f.RelPath]
			if e == nil {
				e = &Entry{Name: f.RelPath, Owner: -1}
				byName[f.RelPath] = e
			}
			e.Providers = append(e.Providers, i)
			e.Files = append(e.Files, f)
		}
	}
	for _, e := range byName {
		s.assignOwner(e, byName)
	}

	out := make([]Entry, 0, len(byName))
	for _, e := range byName {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	log.Debug().Int("files", len(out)).Int("patches", len(s.patches)).Msg("stack listing")
	return out, nil
}

// assignOwner applies the ResolveBinary order to the listed copies.
func (s *Stack) assignOwner(e *Entry, byName map[string]*Entry) {
	chain := s.Chain(e.Name)
	for i := len(s.patches) - 1; i >= 0; i-- {
		for c := len(chain) - 1; c >= 0; c-- {
			if f, ok := byName[chain[c]].fileFrom(i); ok && !f.Blacklisted {
				e.Owner, e.owner = i, f
				return
			}
		}
	}
}

func (e *Entry) fileFrom(index int) (*walkwalk.FileInfo, bool) {
	if e == nil {
		return nil, false
	}
	for k, idx := range e.Providers {
		if idx == index {
			return &e.Files[k], true
		}
	}
	return nil, false
}

// OwnerFile returns the FileInfo of the copy ResolveBinary would load.
func (e Entry) OwnerFile() (walkwalk.FileInfo, bool) {
	if e.owner == nil {
		return walkwalk.FileInfo{}, false
	}
	return *e.owner, true
}
