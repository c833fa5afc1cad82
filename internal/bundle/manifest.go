// Package bundle exports the resolved view of a patch stack: every file the
// stack provides, as the game would receive it, plus metadata describing
// which patch each file came from.
package bundle

import (
	"path"
	"strings"
)

// ManifestVersion is bumped on incompatible manifest changes.
const ManifestVersion = 1

// File kinds.
const (
	KindJSON   = "json"
	KindBinary = "binary"
)

// Manifest is written as manifest.json at the root of an export.
type Manifest struct {
	Version int        `json:"version"`
	Game    string     `json:"game,omitempty"`
	Build   string     `json:"build,omitempty"`
	Patches []ManPatch `json:"patches"`
	Files   []ManFile  `json:"files"`
	// Ignored lists binaries every provider blacklists; they are not exported.
	Ignored []string `json:"ignored,omitempty"`
}

// ManPatch describes one stack slot.
type ManPatch struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Title string `json:"title,omitempty"`
	Inert bool   `json:"inert,omitempty"`
}

// ManFile describes one exported file, stored under files/<Path>.
type ManFile struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	// Sources lists the patch indices whose content ended up in the file:
	// the owner for binaries, every merged layer for JSON.
	Sources []int  `json:"sources"`
	Size    int    `json:"size"`
	Hash    string `json:"sha256"`
	// Layers names the per-patch diff under layers/, when written.
	Layers string `json:"layers,omitempty"`
}

// IsJSONName reports whether name is resolved by merging rather than by
// priority.
func IsJSONName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".js", ".json", ".jdiff":
		return true
	}
	return false
}
