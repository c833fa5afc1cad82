package bundle

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"patchstack/internal/diff"
	"patchstack/internal/graph"
	"patchstack/internal/ziputil"
)

// WriteExport writes exp as a reproducible ZIP:
//
//	manifest.json
//	graph.json
//	README.md   # stable (no wall-clock timestamps)
//	TOC.md
//	files/<resolved files>
//	layers/<per-file layer diffs>   # optional
//
// Entries use fixed timestamps and sorted order, so identical stacks yield
// identical archives.
func WriteExport(zipPath string, exp *Export, g graph.Graph, opt diff.Options) error {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := writeEntries(zw, exp, g, opt); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func writeEntries(zw *zip.Writer, exp *Export, g graph.Graph, opt diff.Options) error {
	if err := ziputil.WriteJSON(zw, "manifest.json", exp.Manifest); err != nil {
		return err
	}
	if err := ziputil.WriteJSON(zw, "graph.json", g); err != nil {
		return err
	}

	ro := readmeOptions(exp)
	ro.ContextLines = opt.Context
	if ro.ContextLines <= 0 {
		ro.ContextLines = 4
	}
	if err := ziputil.WriteText(zw, "README.md", GenerateReadme(ro)); err != nil {
		return err
	}
	if err := ziputil.WriteText(zw, "TOC.md", toc(exp.Manifest)); err != nil {
		return err
	}

	files := make([]ManFile, len(exp.Manifest.Files))
	copy(files, exp.Manifest.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, mf := range files {
		data, _ := exp.Data(mf.Path)
		if err := ziputil.WriteText(zw, "files/"+mf.Path, data); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(exp.LayerDiffs))
	for n := range exp.LayerDiffs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := ziputil.WriteText(zw, "layers/"+n, []byte(exp.LayerDiffs[n])); err != nil {
			return err
		}
	}
	return nil
}

// toc renders a table of contents from the manifest (path, kind, sources).
func toc(m Manifest) []byte {
	var b strings.Builder
	b.WriteString("# TOC\n\n| # | Path | Kind | Sources | Size |\n|---:|:-----|:-----|:-----|-----:|\n")
	for i, f := range m.Files {
		src := make([]string, len(f.Sources))
		for k, s := range f.Sources {
			src[k] = strconv.Itoa(s)
		}
		b.WriteString("| ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(" | ")
		b.WriteString(f.Path)
		b.WriteString(" | ")
		b.WriteString(f.Kind)
		b.WriteString(" | ")
		b.WriteString(strings.Join(src, ", "))
		b.WriteString(" | ")
		b.WriteString(strconv.Itoa(f.Size))
		b.WriteString(" |\n")
	}
	return []byte(b.String())
}
