// Package validate performs lightweight validation of patch and repository
// descriptors and of stack exports. It is not a full JSON-Schema validator;
// instead it checks structural and semantic constraints that commonly catch
// broken patches and bad exports.
//
// Every check aggregates all issues into a single error so one run reports
// everything that needs fixing.
package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"patchstack/internal/bundle"
	"patchstack/internal/ziputil"
)

// Manifest validates high-level constraints on an export manifest:
//
//   - Version >= 1.
//   - Patch slots are numbered 0..n-1 in order; non-inert slots have a label.
//   - Each file has a normalized relative path (no absolute, no "..", no
//     backslashes) and appears once.
//   - Kind is json or binary; binaries have exactly one source, JSON at
//     least one, and sources are ascending indices of non-inert slots.
//   - Hash is a 64-char lowercase hex (sha256); size >= 0.
//   - Layers, if set, is a layers/ entry of a JSON file.
//   - Files are sorted by path.
//
// The function returns nil if everything looks fine, or a single aggregated
// error describing all the issues found.
func Manifest(m bundle.Manifest) error {
	var errs errlist

	if m.Version < 1 {
		errs.add("manifest.version must be >= 1 (got %d)", m.Version)
	}
	for i, p := range m.Patches {
		if p.Index != i {
			errs.add("patches[%d]: index must be %d (got %d)", i, i, p.Index)
		}
		if !p.Inert && strings.TrimSpace(p.Label) == "" {
			errs.add("patches[%d]: label must be non-empty", i)
		}
	}

	seen := make(map[string]struct{}, len(m.Files))
	for i, f := range m.Files {
		prefix := fmt.Sprintf("files[%d] (%s)", i, f.Path)

		checkPath(&errs, prefix, f.Path)
		if _, dup := seen[f.Path]; dup {
			errs.add("%s: duplicate file path %q", prefix, f.Path)
		} else if f.Path != "" {
			seen[f.Path] = struct{}{}
		}

		switch f.Kind {
		case bundle.KindBinary:
			if len(f.Sources) != 1 {
				errs.add("%s: binary must have exactly one source (got %d)", prefix, len(f.Sources))
			}
			if f.Layers != "" {
				errs.add("%s: layers are only written for json files", prefix)
			}
		case bundle.KindJSON:
			if len(f.Sources) == 0 {
				errs.add("%s: json must have at least one source", prefix)
			}
			if f.Layers != "" && !strings.HasPrefix(f.Layers, "layers/") {
				errs.add("%s: layers must live under layers/ (got %q)", prefix, f.Layers)
			}
		default:
			errs.add("%s: unknown kind %q", prefix, f.Kind)
		}
		for j, src := range f.Sources {
			if src < 0 || src >= len(m.Patches) {
				errs.add("%s: sources[%d] = %d is not a patch slot", prefix, j, src)
				continue
			}
			if m.Patches[src].Inert {
				errs.add("%s: sources[%d] = %d is an empty slot", prefix, j, src)
			}
			if j > 0 && src <= f.Sources[j-1] {
				errs.add("%s: sources must be strictly ascending", prefix)
			}
		}

		if !reHex64.MatchString(f.Hash) {
			errs.add("%s: hash must be 64 lowercase hex chars (sha256), got %q", prefix, f.Hash)
		}
		if f.Size < 0 {
			errs.add("%s: size must be >= 0 (got %d)", prefix, f.Size)
		}
	}

	// Keeps exports byte-for-byte stable.
	if !isSortedByPath(m.Files) {
		errs.add("manifest.files should be sorted by path for deterministic exports")
	}
	if !sort.StringsAreSorted(m.Ignored) {
		errs.add("manifest.ignored should be sorted")
	}

	return errs.err()
}

// Export opens the export archive at zipPath, validates its manifest and
// checks that every listed file is present with the recorded size and hash,
// and that files/ holds nothing unlisted.
func Export(zipPath string) error {
	entries, _, err := ziputil.ReadAll(zipPath)
	if err != nil {
		return err
	}
	raw, ok := entries["manifest.json"]
	if !ok {
		return errors.New("manifest.json missing")
	}
	var m bundle.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("manifest.json: %w", err)
	}

	var errs errlist
	if err := Manifest(m); err != nil {
		errs.add("%v", err)
	}
	for _, name := range []string{"graph.json", "README.md"} {
		if _, ok := entries[name]; !ok {
			errs.add("%s missing", name)
		}
	}

	listed := make(map[string]struct{}, len(m.Files))
	for _, f := range m.Files {
		name := "files/" + f.Path
		listed[name] = struct{}{}
		data, ok := entries[name]
		if !ok {
			errs.add("%s: missing from archive", name)
			continue
		}
		if len(data) != f.Size {
			errs.add("%s: size %d does not match manifest (%d)", name, len(data), f.Size)
		}
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != f.Hash {
			errs.add("%s: sha256 %s does not match manifest", name, got)
		}
		if f.Layers != "" {
			if _, ok := entries[f.Layers]; !ok {
				errs.add("%s: missing from archive", f.Layers)
			}
		}
	}
	var extra []string
	for name := range entries {
		if _, ok := listed[name]; !ok && strings.HasPrefix(name, "files/") {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		errs.add("%s: not listed in manifest", name)
	}
	return errs.err()
}

// --- helpers -----------------------------------------------------------------

var reHex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func checkPath(errs *errlist, prefix, p string) {
	if p == "" {
		errs.add("%s: path must be non-empty", prefix)
		return
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		errs.add("%s: path must be relative, got %q", prefix, p)
	}
	if strings.Contains(p, `\`) {
		errs.add("%s: path must use forward slashes ('/'), found backslash", prefix)
	}
	if hasDotDot(p) {
		errs.add("%s: path must not contain '..' segments (got %q)", prefix, p)
	}
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isSortedByPath(files []bundle.ManFile) bool {
	return sort.SliceIsSorted(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "\n"))
}
