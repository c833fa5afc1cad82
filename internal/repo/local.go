package repo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// EnumerateLocal loads every <root>/repos/*/repo.js. Directories without a
// usable descriptor are skipped. ctx is checked between entries. The result
// is sorted by id.
func EnumerateLocal(ctx context.Context, root string) ([]*Repo, error) {
	dir := filepath.Join(root, "repos")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Repo
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), DescriptorFile)
		r, err := Load(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("path", path).Msg("skipping repository")
			}
			continue
		}
		out = append(out, r)
	}
	SortByID(out)
	return out, nil
}

// SortByID sorts repos lexicographically by id.
func SortByID(repos []*Repo) {
	sort.SliceStable(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
}
