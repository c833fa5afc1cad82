// Package walkwalk lists the files of a patch archive deterministically.
// It backs stack listings and exports, which need to know every file a patch
// could contribute rather than probing one name at a time.
package walkwalk

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"patchstack/internal/glob"
)

// FileInfo describes one file found in an archive.
type FileInfo struct {
	RelPath   string // archive-relative path with forward slashes
	AbsPath   string // host path
	Size      int64
	SHA256Hex string // empty unless Options.Hash is set
	Ext       string // lowercase extension including dot (e.g. ".js")
	// Blacklisted is set when RelPath matches one of Options.Ignore. Such
	// files are still listed because JSON resolution does not honor ignores.
	Blacklisted bool
}

// Options controls CollectArchive.
type Options struct {
	// Ignore holds the patch's ignore wildcards.
	Ignore []string
	// Exclude skips entries whose base name equals a key. ".git" is always
	// excluded.
	Exclude map[string]struct{}
	// UseGitignore honors <archive>/.gitignore, for archives that are
	// working copies of a patch repository.
	UseGitignore bool
	Hash         bool
}

type walkState struct {
	opts     Options
	patterns []gitPattern
	// active holds the real paths of the directories being walked, so a
	// link back to an ancestor is not followed twice.
	active map[string]struct{}
	files  []FileInfo
}

// CollectArchive walks archive and returns its regular files sorted by
// RelPath. Symbolic links are followed, as the patch file loaders do. A
// missing archive yields fs.ErrNotExist.
func CollectArchive(archive string, opts Options) ([]FileInfo, error) {
	root, err := filepath.Abs(filepath.FromSlash(archive))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "walk", Path: root, Err: fs.ErrNotExist}
	}
	ws := &walkState{opts: opts, active: map[string]struct{}{}}
	if opts.UseGitignore {
		if pats, err := parseGitignore(filepath.Join(root, ".gitignore")); err == nil {
			ws.patterns = pats
		}
	}
	if err := ws.walk(root, ""); err != nil {
		return nil, err
	}
	sort.Slice(ws.files, func(i, j int) bool { return ws.files[i].RelPath < ws.files[j].RelPath })
	return ws.files, nil
}

// walk lists dir, whose files are reported under prefix.
func (ws *walkState) walk(dir, prefix string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil
	}
	if _, loop := ws.active[resolved]; loop {
		return nil
	}
	ws.active[resolved] = struct{}{}
	defer delete(ws.active, resolved)

	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == resolved {
			return nil
		}
		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if prefix != "" {
			rel = prefix + "/" + rel
		}

		var info fs.FileInfo
		if d.Type()&fs.ModeSymlink != 0 {
			// Dangling links are skipped.
			if info, err = os.Stat(path); err != nil {
				return nil
			}
		} else if info, err = d.Info(); err != nil {
			return nil
		}

		if ws.shouldSkip(rel, info.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case d.IsDir():
			return nil
		case info.IsDir():
			if isAncestorLink(path) {
				return nil
			}
			return ws.walk(path, rel)
		case info.Mode().IsRegular():
			ws.addFile(path, rel, info)
		}
		return nil
	})
}

// isAncestorLink reports whether the directory link at path points at one of
// its own parents.
func isAncestorLink(path string) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return true
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return true
	}
	return parent == target || strings.HasPrefix(parent, target+string(filepath.Separator))
}

func (ws *walkState) shouldSkip(rel string, isDir bool) bool {
	base := path.Base(rel)
	if base == ".git" {
		return true
	}
	if _, bad := ws.opts.Exclude[base]; bad {
		return true
	}
	return ws.opts.UseGitignore && matchGitignore(ws.patterns, rel, isDir)
}

func (ws *walkState) addFile(path, rel string, info fs.FileInfo) {
	fi := FileInfo{
		RelPath:     rel,
		AbsPath:     path,
		Size:        info.Size(),
		Ext:         strings.ToLower(filepath.Ext(path)),
		Blacklisted: glob.MatchAny(ws.opts.Ignore, rel),
	}
	if ws.opts.Hash {
		sum, err := sha256File(path)
		if err != nil {
			return
		}
		fi.SHA256Hex = sum
	}
	ws.files = append(ws.files, fi)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ---------------- .gitignore support ----------------

type gitPattern struct {
	neg     bool
	dirOnly bool
	rx      *regexp.Regexp
}

// parseGitignore compiles the subset of .gitignore syntax patch repositories
// use: comments, '!' negation, leading '/' anchoring, trailing '/' for
// directories, '**' across directories, and '*'/'?' within one segment.
func parseGitignore(path string) ([]gitPattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var res []gitPattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		neg := strings.HasPrefix(line, "!")
		if neg {
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}
		dirOnly := strings.HasSuffix(line, "/")
		line = strings.TrimSuffix(line, "/")
		anchored := strings.HasPrefix(line, "/")
		line = strings.TrimPrefix(line, "/")
		res = append(res, gitPattern{neg: neg, dirOnly: dirOnly, rx: compileGitGlob(line, anchored)})
	}
	return res, s.Err()
}

func compileGitGlob(pattern string, anchored bool) *regexp.Regexp {
	esc := regexp.QuoteMeta(pattern)
	esc = strings.ReplaceAll(esc, `\*\*`, "\x00")
	esc = strings.ReplaceAll(esc, `\*`, "[^/]*")
	esc = strings.ReplaceAll(esc, `\?`, "[^/]")
	esc = strings.ReplaceAll(esc, "\x00", ".*")
	if anchored {
		return regexp.MustCompile("^" + esc + "$")
	}
	return regexp.MustCompile("(^|.*/)" + esc + "$")
}

func matchGitignore(pats []gitPattern, rel string, isDir bool) bool {
	ignored := false
	for _, p := range pats {
		if p.dirOnly && !isDir {
			continue
		}
		if p.rx.MatchString(rel) {
			ignored = !p.neg
		}
	}
	return ignored
}
