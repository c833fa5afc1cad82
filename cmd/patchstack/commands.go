package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"patchstack/internal/bundle"
	"patchstack/internal/config"
	"patchstack/internal/diff"
	"patchstack/internal/discovery"
	"patchstack/internal/fsutil"
	"patchstack/internal/graph"
	"patchstack/internal/jsonval"
	"patchstack/internal/netfetch"
	"patchstack/internal/patch"
	"patchstack/internal/repo"
	"patchstack/internal/runconfig"
	"patchstack/internal/stack"
	"patchstack/internal/validate"
)

// cmdCtx carries the parsed shared settings and command flags.
type cmdCtx struct {
	ctx    context.Context
	fs     *flag.FlagSet
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer

	out          string
	raw          bool
	game         bool
	sorted       bool
	contextLines int
	hash         bool
	ignored      bool
	gitignore    bool
	asJSON       bool
	order        bool
	export       string
	layers       bool
	zip          string
	local        bool
	write        bool
}

func (c *cmdCtx) arg(i int, name string) (string, error) {
	if c.fs.NArg() <= i {
		return "", usagef("missing <%s>", name)
	}
	return c.fs.Arg(i), nil
}

// manager loads the run configuration into a stack manager.
func (c *cmdCtx) manager() (*stack.Manager, error) {
	if c.cfg.RunConfig == "" {
		return nil, usagef("-runcfg (or PATCHSTACK_RUNCFG) is required")
	}
	m := stack.NewManager(c.cfg.JSONCache)
	err := m.Rebuild(func() (*stack.Stack, error) {
		rc, err := runconfig.Load(c.cfg.RunConfig)
		if err != nil {
			return nil, err
		}
		return rc.BuildStack(runconfig.BuildOptions{Root: c.cfg.Root})
	})
	if err != nil {
		return nil, err
	}
	s := m.Stack()
	log.Debug().Int("patches", s.Len()).Str("game", s.Options().Game).Str("build", s.Options().Build).Msg("stack loaded")
	return m, nil
}

func (c *cmdCtx) stack() (*stack.Stack, error) {
	m, err := c.manager()
	if err != nil {
		return nil, err
	}
	return m.Stack(), nil
}

// emit writes data to -o or stdout.
func (c *cmdCtx) emit(data []byte) error {
	if c.out != "" {
		return fsutil.WriteFileAtomic(c.out, data)
	}
	_, err := c.stdout.Write(data)
	return err
}

// --- resolve ------------------------------------------------------------------

func setupResolve(c *cmdCtx) {
	c.fs.StringVar(&c.out, "o", "", "write to file instead of stdout")
	c.fs.BoolVar(&c.raw, "raw", false, "resolve <fn> as a stack path: no game prefix, no hooks")
}

func runResolve(c *cmdCtx) error {
	fn, err := c.arg(0, "fn")
	if err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	var res stack.Result
	if c.raw {
		res, err = m.ResolveBinary(fn)
	} else {
		res, err = m.Stack().ResolveFile(fn)
	}
	if err != nil {
		return err
	}
	log.Info().Str("file", res.Name).Int("index", res.Index).Str("patch", res.Patch.Name()).Int("bytes", len(res.Data)).Msg("resolved")
	return c.emit(res.Data)
}

// --- json ---------------------------------------------------------------------

func setupJSON(c *cmdCtx) {
	c.fs.StringVar(&c.out, "o", "", "write to file instead of stdout")
	c.fs.BoolVar(&c.game, "game", false, "prefix <fn> with the configured game")
	c.fs.BoolVar(&c.sorted, "sort", false, "sort object keys")
}

func runJSON(c *cmdCtx) error {
	fn, err := c.arg(0, "fn")
	if err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	var v jsonval.Value
	if c.game {
		v, err = m.Current().ResolveGameJSON(fn)
	} else {
		v, err = m.ResolveJSON(fn)
	}
	if err != nil {
		return err
	}
	out, err := jsonval.MarshalIndent(v, "  ", c.sorted)
	if err != nil {
		return err
	}
	return c.emit(append(out, '\n'))
}

// --- diff ---------------------------------------------------------------------

func setupDiff(c *cmdCtx) {
	c.fs.BoolVar(&c.game, "game", false, "prefix <fn> with the configured game")
	c.fs.IntVar(&c.contextLines, "context", 4, "unified diff context lines")
}

func runDiff(c *cmdCtx) error {
	fn, err := c.arg(0, "fn")
	if err != nil {
		return err
	}
	s, err := c.stack()
	if err != nil {
		return err
	}
	if c.game {
		fn = s.ForGame(fn)
	}
	layers, err := s.Layers(fn)
	if err != nil {
		return err
	}
	body, err := bundle.LayerDiff(fn, layers, diff.Options{Context: c.contextLines})
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.stdout, body)
	return err
}

// --- missing ------------------------------------------------------------------

func runMissing(c *cmdCtx) error {
	s, err := c.stack()
	if err != nil {
		return err
	}
	for _, a := range s.MissingArchives() {
		fmt.Fprintln(c.stdout, a)
	}
	return nil
}

// --- ls -----------------------------------------------------------------------

func setupLs(c *cmdCtx) {
	c.fs.BoolVar(&c.hash, "hash", false, "print the sha256 of the owning copy")
	c.fs.BoolVar(&c.ignored, "ignored", false, "include files every provider ignores")
	c.fs.BoolVar(&c.gitignore, "gitignore", false, "hide files matched by an archive's .gitignore")
}

func runLs(c *cmdCtx) error {
	s, err := c.stack()
	if err != nil {
		return err
	}
	entries, err := s.Listing(stack.ListOptions{Hash: c.hash, Gitignore: c.gitignore})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		owner := "(ignored)"
		if e.Owner >= 0 {
			owner = graph.Label(s.Patch(e.Owner))
		} else if !c.ignored {
			continue
		}
		kind := bundle.KindBinary
		if bundle.IsJSONName(e.Name) {
			kind = bundle.KindJSON
		}
		line := e.Name + "\t" + kind + "\t" + owner
		if c.hash {
			if f, ok := e.OwnerFile(); ok {
				line += "\t" + f.SHA256Hex
			}
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

// --- deps ---------------------------------------------------------------------

func setupDeps(c *cmdCtx) {
	c.fs.BoolVar(&c.asJSON, "json", false, "print the graph as JSON")
	c.fs.BoolVar(&c.order, "order", false, "print a load order satisfying every dependency")
}

func runDeps(c *cmdCtx) error {
	s, err := c.stack()
	if err != nil {
		return err
	}
	g := graph.FromPatches(s.Patches())
	switch {
	case c.asJSON:
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	case c.order:
		order, err := g.Order()
		if err != nil {
			return err
		}
		for _, n := range order {
			fmt.Fprintln(c.stdout, n)
		}
		return nil
	}
	for _, e := range g.Edges {
		fmt.Fprintf(c.stdout, "%s -> %s\n", e[0], e[1])
	}
	for _, e := range g.Missing {
		fmt.Fprintf(c.stdout, "missing: %s needs %s\n", e[0], e[1])
	}
	for _, e := range g.Late {
		fmt.Fprintf(c.stdout, "late: %s is loaded after %s, which depends on it\n", e[1], e[0])
	}
	return nil
}

// --- validate -----------------------------------------------------------------

func setupValidate(c *cmdCtx) {
	c.fs.StringVar(&c.export, "export", "", "validate an export zip instead of the stack")
}

func runValidate(c *cmdCtx) error {
	if c.export != "" {
		if err := validate.Export(c.export); err != nil {
			return fmt.Errorf("%s:\n%w", c.export, err)
		}
		fmt.Fprintln(c.stdout, "ok")
		return nil
	}

	var problems []string
	if c.cfg.RunConfig != "" {
		s, err := c.stack()
		if err != nil {
			return err
		}
		for _, p := range s.Patches() {
			if p.IsInert() {
				continue
			}
			v, err := p.LoadJSON(patch.DescriptorFile)
			if errors.Is(err, patch.ErrNotFound) {
				continue
			}
			if err == nil {
				err = validate.PatchDescriptor(v)
			}
			if err != nil {
				problems = append(problems, p.Path(patch.DescriptorFile)+":\n"+err.Error())
			}
		}
	}
	repos, err := repo.EnumerateLocal(c.ctx, c.cfg.Root)
	if err != nil {
		return err
	}
	for _, r := range repos {
		path := filepath.Join(c.cfg.Root, filepath.FromSlash(repo.LocalDescriptorPath(r.ID)))
		v, err := loadJSONFile(path)
		if err == nil {
			err = validate.RepoDescriptor(v)
		}
		if err != nil {
			problems = append(problems, path+":\n"+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "\n"))
	}
	fmt.Fprintln(c.stdout, "ok")
	return nil
}

// --- export -------------------------------------------------------------------

func setupExport(c *cmdCtx) {
	c.fs.StringVar(&c.zip, "zip", "", "output zip path")
	c.fs.BoolVar(&c.layers, "layers", false, "include per-patch diffs of merged JSON files")
	c.fs.IntVar(&c.contextLines, "context", 4, "unified diff context lines for -layers")
}

func runExport(c *cmdCtx) error {
	if c.zip == "" {
		return usagef("-zip is required")
	}
	s, err := c.stack()
	if err != nil {
		return err
	}
	opt := diff.Options{Context: c.contextLines}
	exp, err := bundle.Collect(s, bundle.Options{Layers: c.layers, Diff: opt})
	if err != nil {
		return err
	}
	if err := validate.Manifest(exp.Manifest); err != nil {
		return err
	}
	if err := bundle.WriteExport(c.zip, exp, graph.FromPatches(s.Patches()), opt); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Wrote export %s (files=%d, ignored=%d, layers=%d)\n",
		c.zip, len(exp.Manifest.Files), len(exp.Manifest.Ignored), len(exp.LayerDiffs))
	return nil
}

// --- repos / discover ---------------------------------------------------------

func runRepos(c *cmdCtx) error {
	repos, err := repo.EnumerateLocal(c.ctx, c.cfg.Root)
	if err != nil {
		return err
	}
	return printRepos(c.stdout, repos)
}

func setupDiscover(c *cmdCtx) {
	c.fs.BoolVar(&c.local, "local", false, "also follow the links of local repositories")
	c.fs.BoolVar(&c.write, "write", false, "store discovered descriptors under -root")
}

func runDiscover(c *cmdCtx) error {
	seed := c.cfg.DiscoveryURL
	if c.fs.NArg() > 0 {
		seed = c.fs.Arg(0)
	}
	repos, err := discovery.Discover(c.ctx, seed, discovery.Options{
		Fetcher:      netfetch.New(c.cfg.FetchTimeout),
		Workers:      c.cfg.Workers,
		Root:         c.cfg.Root,
		IncludeLocal: c.local,
		WriteLocal:   c.write,
	})
	if err != nil {
		return err
	}
	return printRepos(c.stdout, repos)
}

func printRepos(w io.Writer, repos []*repo.Repo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range repos {
		fmt.Fprintf(tw, "%s\t%s\t%d patches\n", r.ID, r.Title, len(r.Patches))
		for _, p := range r.Patches {
			line := "  " + patch.FormatDependency(r.ID, p.ID) + "\t" + p.Title
			if p.Flags != 0 {
				line += "\t[" + p.Flags.String() + "]"
			}
			fmt.Fprintln(tw, line)
		}
	}
	return tw.Flush()
}

// --- run configuration edits --------------------------------------------------

func (c *cmdCtx) runConfigPath() (string, error) {
	if c.cfg.RunConfig == "" {
		return "", usagef("-runcfg (or PATCHSTACK_RUNCFG) is required")
	}
	return c.cfg.RunConfig, nil
}

func runAdd(c *cmdCtx) error {
	archive, err := c.arg(0, "archive")
	if err != nil {
		return err
	}
	path, err := c.runConfigPath()
	if err != nil {
		return err
	}
	if err := runconfig.AddPatch(path, archive); err != nil {
		return err
	}
	log.Info().Str("archive", archive).Str("runcfg", path).Msg("patch added")
	return nil
}

func runRemove(c *cmdCtx) error {
	raw, err := c.arg(0, "index")
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return usagef("invalid index %q", raw)
	}
	path, err := c.runConfigPath()
	if err != nil {
		return err
	}
	return runconfig.RemovePatch(path, index)
}

func runSet(c *cmdCtx) error {
	key, err := c.arg(0, "key")
	if err != nil {
		return err
	}
	value, err := c.arg(1, "value")
	if err != nil {
		return err
	}
	switch key {
	case "game", "build", "title":
	default:
		return usagef("unknown key %q", key)
	}
	path, err := c.runConfigPath()
	if err != nil {
		return err
	}
	return runconfig.SetString(path, key, value)
}

func loadJSONFile(path string) (jsonval.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jsonval.Parse(data)
}
