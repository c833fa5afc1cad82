// Package discovery finds repositories by walking the server and neighbor
// links of repository descriptors, starting at a seed URL.
//
// Goals:
//   - Each URL is fetched at most once and each repository id is kept once
//     (first seen wins).
//   - Fetches run concurrently with a bounded number in flight.
//   - A failing URL only ends its own branch of the walk; cancellation ends
//     the whole walk.
//   - The result is sorted by id whatever order the fetches completed in.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"patchstack/internal/netfetch"
	"patchstack/internal/repo"
)

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// DefaultWorkers bounds concurrent fetches when Options.Workers is unset.
const DefaultWorkers = 8

// Options configures Discover.
type Options struct {
	Fetcher Fetcher
	Workers int
	// Root is the directory holding repos/, used by IncludeLocal and
	// WriteLocal.
	Root string
	// IncludeLocal adds the local repositories after the remote walk and
	// follows their links too.
	IncludeLocal bool
	// WriteLocal stores every discovered descriptor under Root.
	WriteLocal bool
}

type walker struct {
	fetcher Fetcher
	sem     *semaphore.Weighted

	ctx context.Context
	g   *errgroup.Group

	mu    sync.Mutex
	urls  map[string]struct{}
	repos map[string]*repo.Repo
}

// NormalizeURL guarantees a trailing '/'.
func NormalizeURL(url string) string {
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return url
}

// Discover walks the repository graph starting at seedURL. It fails only if
// the seed cannot be fetched or parsed, or if the walk is cancelled.
func Discover(ctx context.Context, seedURL string, opts Options) ([]*repo.Repo, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("discovery: no fetcher")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	w := &walker{
		fetcher: opts.Fetcher,
		sem:     semaphore.NewWeighted(int64(workers)),
		urls:    map[string]struct{}{},
		repos:   map[string]*repo.Repo{},
	}

	log.Info().Str("url", seedURL).Msg("starting repository discovery")
	err := w.phase(ctx, func() {
		w.addServer(seedURL, true)
	})
	if err != nil {
		return nil, err
	}

	if opts.IncludeLocal {
		local, err := repo.EnumerateLocal(ctx, opts.Root)
		if err != nil {
			return nil, cancelled(ctx, err)
		}
		err = w.phase(ctx, func() {
			for _, r := range local {
				w.addRepo(r)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	out := w.result()
	if opts.WriteLocal {
		for _, r := range out {
			if err := repo.Write(opts.Root, r); err != nil {
				log.Warn().Err(err).Str("repo", r.ID).Msg("could not store repository")
			}
		}
	}
	return out, nil
}

func (w *walker) phase(ctx context.Context, start func()) error {
	w.g, w.ctx = errgroup.WithContext(ctx)
	start()
	if err := w.g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return cancelled(ctx, ctx.Err())
	}
	return nil
}

func (w *walker) addRepo(r *repo.Repo) {
	w.mu.Lock()
	if _, known := w.repos[r.ID]; known {
		w.mu.Unlock()
		return
	}
	w.repos[r.ID] = r
	w.mu.Unlock()
	log.Debug().Str("repo", r.ID).Msg("discovered")

	for _, url := range r.Servers {
		w.addServer(url, false)
	}
	for _, url := range r.Neighbors {
		w.addServer(url, false)
	}
}

func (w *walker) addServer(url string, seed bool) {
	if url == "" {
		return
	}
	url = NormalizeURL(url)
	w.mu.Lock()
	if _, seen := w.urls[url]; seen {
		w.mu.Unlock()
		return
	}
	w.urls[url] = struct{}{}
	w.mu.Unlock()

	w.g.Go(func() error {
		return w.visit(url, seed)
	})
}

func (w *walker) visit(url string, seed bool) error {
	if err := w.sem.Acquire(w.ctx, 1); err != nil {
		return cancelled(w.ctx, err)
	}
	data, err := w.fetcher.Fetch(w.ctx, url+repo.DescriptorFile)
	w.sem.Release(1)
	if err != nil {
		if errors.Is(err, netfetch.ErrCancelled) || errors.Is(err, context.Canceled) {
			return netfetch.ErrCancelled
		}
		if seed {
			return fmt.Errorf("discovery: %s: %w", url, err)
		}
		log.Warn().Err(err).Str("url", url).Msg("repository unavailable")
		return nil
	}
	r, err := repo.Parse(data)
	if err != nil {
		if seed {
			return fmt.Errorf("discovery: %s: invalid repository: %w", url, err)
		}
		log.Warn().Err(err).Str("url", url).Msg("invalid repository")
		return nil
	}
	w.addRepo(r)
	return nil
}

func (w *walker) result() []*repo.Repo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*repo.Repo, 0, len(w.repos))
	for _, r := range w.repos {
		out = append(out, r)
	}
	repo.SortByID(out)
	return out
}

func cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return netfetch.ErrCancelled
	}
	return err
}
