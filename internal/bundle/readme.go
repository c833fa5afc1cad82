package bundle

import (
	"bytes"
	"strings"
	"text/template"
)

// ReadmeOptions configures README generation. All fields are rendered
// deterministically; no timestamps or environment data.
type ReadmeOptions struct {
	Game         string
	Build        string
	Patches      []ManPatch
	JSONFiles    int
	BinaryFiles  int
	Ignored      int
	Layers       bool
	ContextLines int
}

const readmeTemplate = `
# {{if .Game}}{{.Game}}{{else}}patch stack{{end}}{{if .Build}} ({{.Build}}){{end}}

This archive is a resolved **patch stack export** produced by *patchstack*. Every file is stored as the game receives it.

## Layout
- **manifest.json**: stack slots and one entry per exported file (kind, contributing patches, size, sha256).
- **graph.json**: patch dependency graph.
- **TOC.md**: table of contents for human reading.
- **files/**: resolved files: {{.JSONFiles}} merged JSON, {{.BinaryFiles}} binary.
{{- if .Layers}}
- **layers/**: per-patch unified diffs of merged JSON files ({{.ContextLines}} context lines).
{{- end}}

## Stack (lowest priority first)
{{range .Patches}}
{{.Index}}. {{if .Inert}}_(empty slot)_{{else}}{{.Label}}{{if .Title}}: {{.Title}}{{end}}{{end}}
{{- end}}

## Resolution rules
- Binary files come from the highest priority patch that has them and does not ignore them.
- JSON files merge every fragment lowest priority first; objects merge key by key, anything else is replaced.
{{- if .Ignored}}
- {{.Ignored}} file(s) were ignored by every patch providing them and are not exported.
{{- end}}

## Conventions
- Encoding: **UTF-8**; newlines: **\n** only.
- JSON is written with two-space indentation and sorted keys.

`

// GenerateReadme renders README.md.
func GenerateReadme(opts ReadmeOptions) []byte {
	t := template.Must(template.New("readme").Parse(readmeTemplate))
	var buf bytes.Buffer
	_ = t.Execute(&buf, opts)
	lines := strings.Split(strings.TrimLeft(buf.String(), "\n"), "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	out := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	return []byte(out)
}

func readmeOptions(exp *Export) ReadmeOptions {
	opts := ReadmeOptions{
		Game:    exp.Manifest.Game,
		Build:   exp.Manifest.Build,
		Patches: exp.Manifest.Patches,
		Ignored: len(exp.Manifest.Ignored),
		Layers:  len(exp.LayerDiffs) > 0,
	}
	for _, f := range exp.Manifest.Files {
		if f.Kind == KindJSON {
			opts.JSONFiles++
		} else {
			opts.BinaryFiles++
		}
	}
	return opts
}
