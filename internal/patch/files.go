package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"patchstack/internal/fsutil"
	"patchstack/internal/glob"
	"patchstack/internal/jsonval"
)

// Path returns the location of the patch-relative file fn inside the
// archive. Exactly one '/' separates the archive from fn regardless of
// trailing or leading slashes.
func (p *Patch) Path(fn string) string {
	if p.IsInert() {
		return ""
	}
	fn = strings.TrimLeft(glob.Normalize(fn), "/")
	archive := strings.TrimRight(p.Archive, "/")
	return archive + "/" + fn
}

// Blacklisted reports whether fn matches any of the patch's ignore globs.
func (p *Patch) Blacklisted(fn string) bool {
	if p == nil {
		return false
	}
	return glob.MatchAny(p.Ignore, fn)
}

// FileExists reports whether fn is not blacklisted and is a regular file in
// the archive.
func (p *Patch) FileExists(fn string) bool {
	if p.IsInert() || p.Blacklisted(fn) {
		return false
	}
	return fsutil.IsRegularFile(p.hostPath(fn))
}

// LoadFile reads fn from the archive. The ignore list is not consulted.
// A missing file yields an error matching ErrNotFound; other I/O failures
// are returned as-is.
func (p *Patch) LoadFile(fn string) ([]byte, error) {
	if p.IsInert() {
		return nil, ErrNotFound
	}
	path := p.hostPath(fn)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, &fs.PathError{Op: "open", Path: path, Err: ErrNotFound}
	}
	return os.ReadFile(path)
}

// LoadJSON reads and parses fn. Parse failures are reported as
// *MalformedError, distinct from ErrNotFound.
func (p *Patch) LoadJSON(fn string) (jsonval.Value, error) {
	v, _, err := p.loadJSONSized(fn)
	return v, err
}

func (p *Patch) loadJSONSized(fn string) (jsonval.Value, int, error) {
	data, err := p.LoadFile(fn)
	if err != nil {
		return nil, 0, err
	}
	v, err := jsonval.Parse(data)
	if err != nil {
		return nil, len(data), &MalformedError{Path: p.Path(fn), Err: err}
	}
	return v, len(data), nil
}

// MergeJSON loads fn and merges it on top of acc. It returns the merged
// document and the size of the file that contributed.
func (p *Patch) MergeJSON(acc jsonval.Value, fn string) (jsonval.Value, int, error) {
	v, size, err := p.loadJSONSized(fn)
	if err != nil {
		return acc, 0, err
	}
	if acc == nil {
		return v, size, nil
	}
	return jsonval.Merge(acc, v), size, nil
}

// StoreFile writes data to fn, creating directories as needed.
func (p *Patch) StoreFile(fn string, data []byte) error {
	if p.IsInert() {
		return ErrInert
	}
	return fsutil.WriteFileAtomic(p.hostPath(fn), data)
}

// StoreJSON writes v to fn with sorted keys and two-space indentation.
func (p *Patch) StoreJSON(fn string, v jsonval.Value) error {
	if v == nil {
		return fmt.Errorf("patch: store %s: nil document", fn)
	}
	data, err := jsonval.MarshalIndent(v, "  ", true)
	if err != nil {
		return err
	}
	return p.StoreFile(fn, data)
}

// DeleteFile removes fn from the archive.
func (p *Patch) DeleteFile(fn string) error {
	if p.IsInert() {
		return ErrInert
	}
	return os.Remove(p.hostPath(fn))
}

// RelativeToAbsolute rewrites a relative archive against basePath (a
// directory, or a file whose directory is used) and canonicalizes it.
// It returns false without error when the archive is already absolute.
// The resolved directory must exist.
func (p *Patch) RelativeToAbsolute(basePath string) (bool, error) {
	if p.IsInert() || basePath == "" {
		return false, errors.New("patch: relative-to-absolute needs an archive and a base path")
	}
	if isAbs(p.Archive) {
		return false, nil
	}
	base, err := filepath.Abs(basePath)
	if err != nil {
		return false, err
	}
	if info, err := os.Stat(base); err == nil && !info.IsDir() {
		base = filepath.Dir(base)
	}
	joined := filepath.Join(base, filepath.FromSlash(p.Archive))
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return false, err
	}
	p.Archive = filepath.ToSlash(resolved)
	return true, nil
}

func (p *Patch) hostPath(fn string) string {
	return filepath.FromSlash(p.Path(fn))
}
