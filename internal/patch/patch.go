// Package patch models one locally archived patch: its metadata (merged from
// the archive's patch.js and the run configuration entry) and file access
// scoped to its archive directory.
package patch

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"patchstack/internal/jsonval"
)

// DescriptorFile is the per-archive metadata file.
const DescriptorFile = "patch.js"

// Patch is one entry of a patch stack.
type Patch struct {
	// Archive is the patch root directory with forward slashes. Empty for an
	// inert placeholder.
	Archive string

	ID           string
	Title        string
	Servers      []string
	Ignore       []string
	MOTD         string
	MOTDTitle    string
	MOTDType     uint32
	Dependencies []Descriptor
	Fonts        []string
	// Update is true unless patch.js or the override sets "update": false.
	Update bool
	// Level is the nesting depth used to indent resolution traces.
	Level int
}

// Build returns a patch rooted at repos/<repoID>/<patchID>/ without touching
// the filesystem.
func Build(repoID, patchID string) *Patch {
	return &Patch{
		Archive: "repos/" + repoID + "/" + patchID + "/",
		Update:  true,
	}
}

// Init loads the patch rooted at archive. An empty archive yields an inert
// patch. A relative archive is made absolute against the current working
// directory. The archive's patch.js (if any) is merged with a deep copy of
// override, override winning, and the result populates the patch.
func Init(archive string, override jsonval.Value, level int) (*Patch, error) {
	p := &Patch{Update: true, Level: level}
	if archive == "" {
		return p, nil
	}
	archive = filepath.ToSlash(archive)
	if !isAbs(archive) {
		abs, err := filepath.Abs(filepath.FromSlash(archive))
		if err != nil {
			return nil, err
		}
		archive = filepath.ToSlash(abs)
	}
	p.Archive = archive

	desc, err := p.LoadJSON(DescriptorFile)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		desc = jsonval.NewObject()
	default:
		log.Warn().Err(err).Str("path", p.Path(DescriptorFile)).Msg("ignoring unusable patch descriptor")
		desc = nil
	}
	merged := jsonval.Merge(desc, jsonval.DeepCopy(override))
	if obj, ok := jsonval.AsObject(merged); ok {
		p.populate(obj)
	}
	return p, nil
}

func (p *Patch) populate(js *jsonval.Object) {
	if s, ok := js.GetString("id"); ok {
		p.ID = s
	}
	if s, ok := js.GetString("title"); ok {
		p.Title = s
	}
	if s, ok := js.GetString("motd"); ok {
		p.MOTD = s
	}
	if s, ok := js.GetString("motd_title"); ok {
		p.MOTDTitle = s
	}
	if v, ok := js.Get("motd_type"); ok {
		if n, ok := v.(jsonval.Number); ok {
			if i, ok := n.Int(); ok && i >= 0 {
				p.MOTDType = uint32(i)
			}
		}
	}
	if list, ok := js.GetStrings("servers"); ok {
		p.Servers = list
	}
	if list, ok := js.GetStrings("ignore"); ok {
		p.Ignore = list
	}
	if v, ok := js.Get("update"); ok {
		if b, ok := v.(jsonval.Bool); ok && !bool(b) {
			p.Update = false
		}
	}
	if list, ok := js.GetStrings("dependencies"); ok {
		p.Dependencies = make([]Descriptor, 0, len(list))
		for _, dep := range list {
			if d := ParseDependency(dep); !d.IsZero() {
				p.Dependencies = append(p.Dependencies, d)
			}
		}
	}
	if v, ok := js.Get("fonts"); ok {
		if fonts, ok := jsonval.AsObject(v); ok {
			p.Fonts = fonts.Keys()
		}
	}
}

// IsInert reports whether the patch is a placeholder without an archive.
func (p *Patch) IsInert() bool {
	return p == nil || p.Archive == ""
}

// Name returns the id, or the archive when the patch has no id.
func (p *Patch) Name() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Archive
}

// MOTDTitleOrDefault returns the configured MOTD title or "Message from <id>".
func (p *Patch) MOTDTitleOrDefault() string {
	if p.MOTDTitle != "" {
		return p.MOTDTitle
	}
	return "Message from " + p.Name()
}

// ToRunConfig returns the run configuration entry that reproduces this patch.
func (p *Patch) ToRunConfig() *jsonval.Object {
	obj := jsonval.NewObject()
	obj.Set("archive", jsonval.String(p.Archive))
	return obj
}

// isAbs accepts both host-absolute paths and drive-letter paths written with
// forward slashes, which show up in run configurations authored on Windows.
func isAbs(p string) bool {
	if filepath.IsAbs(filepath.FromSlash(p)) || strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && p[2] == '/'
}
