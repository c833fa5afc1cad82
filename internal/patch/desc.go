package patch

import "strings"

// Descriptor references a patch by repository and patch id, as written in
// "dependencies" arrays ("repo/patch" or a bare "patch").
type Descriptor struct {
	RepoID  string
	PatchID string
	// HasRepo is false when the reference names no repository, meaning
	// "same repository as the referring patch".
	HasRepo bool
}

// ParseDependency splits s on its last '/'. Without a '/', the whole string
// is the patch id and the repository is absent. An empty string yields the
// zero Descriptor.
func ParseDependency(s string) Descriptor {
	if s == "" {
		return Descriptor{}
	}
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return Descriptor{PatchID: s}
	}
	return Descriptor{RepoID: s[:i], PatchID: s[i+1:], HasRepo: true}
}

// FormatDependency is the inverse of ParseDependency for a present repo id.
func FormatDependency(repoID, patchID string) string {
	return repoID + "/" + patchID
}

// IsZero reports whether d references nothing.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

func (d Descriptor) String() string {
	if d.HasRepo {
		return FormatDependency(d.RepoID, d.PatchID)
	}
	return d.PatchID
}

// Resolve fills in the repository of a same-repo reference.
func (d Descriptor) Resolve(defaultRepo string) Descriptor {
	if d.HasRepo || d.IsZero() {
		return d
	}
	return Descriptor{RepoID: defaultRepo, PatchID: d.PatchID, HasRepo: true}
}
