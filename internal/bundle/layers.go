// Per-layer diffs: for a merged JSON file, one unified diff per contributing
// fragment, each showing how the merged document changed when that fragment
// was applied. Bodies are keyed by Windows-safe, deterministic file names.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"patchstack/internal/diff"
	"patchstack/internal/graph"
	"patchstack/internal/jsonval"
	"patchstack/internal/stack"
)

// invalidFileCharsRe contains characters that are invalid in Windows filenames.
var invalidFileCharsRe = regexp.MustCompile(`[\\:*?"<>|]`)

// safeDiffBase returns a filesystem-safe base name for a patch (without .patch extension):
// it replaces slashes with '_' and removes invalid characters.
func safeDiffBase(p string) string {
	base := filepath.ToSlash(p)
	base = strings.ReplaceAll(base, "/", "_")
	base = invalidFileCharsRe.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, "._")
	if base == "" {
		base = "patch"
	}
	return base
}

// shortHash returns the first 8 hex characters of the SHA-256 hash of s.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// uniquePatchName constructs a unique patch filename considering names already used.
// If base+".patch" is taken, it appends a suffix using hashHint (or a hash of the base)
// until a free name is found. Returns only the filename (no directories).
func uniquePatchName(base, hashHint string, used map[string]struct{}) string {
	name := base + ".patch"
	if _, ok := used[name]; !ok {
		used[name] = struct{}{}
		return name
	}
	suffix := hashHint
	if suffix == "" {
		suffix = shortHash(base)
	}
	name = base + "-" + suffix + ".patch"
	if _, ok := used[name]; !ok {
		used[name] = struct{}{}
		return name
	}
	name = base + "-" + suffix + "-" + shortHash(base+suffix) + ".patch"
	used[name] = struct{}{}
	return name
}

// LayerDiff concatenates the diffs of every layer of fn, lowest first. The
// first layer is rendered as an added file.
func LayerDiff(fn string, layers []stack.Layer, opt diff.Options) (string, error) {
	var (
		b    strings.Builder
		prev jsonval.Value
		from string
	)
	for _, l := range layers {
		to := fmt.Sprintf("%d:%s/%s", l.Index, graph.Label(l.Patch), l.Name)
		body, _, err := diff.JSON(from, to, prev, l.Result, opt)
		if err != nil {
			return "", fmt.Errorf("%s: %w", fn, err)
		}
		if body == "" {
			body = fmt.Sprintf("--- %s\n+++ %s\n# no change\n", from, to)
		}
		b.WriteString(body)
		prev, from = l.Result, to
	}
	return b.String(), nil
}
