// Package repo loads, writes and enumerates repository descriptors
// (repos/<id>/repo.js).
//
// A descriptor looks like:
//
//	{
//	    "id": "thpatch",
//	    "title": "Touhou Patch Center",
//	    "contact": "...",
//	    "servers": ["https://srv.thpatch.net/"],
//	    "neighbors": ["https://mirror.example/"],
//	    "patches": {"lang_en": "English", "base": {"title": "Base", "flags": ["core"]}}
//	}
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"patchstack/internal/fsutil"
	"patchstack/internal/jsonval"
)

// DescriptorFile is the name of a repository descriptor.
const DescriptorFile = "repo.js"

var (
	// ErrMalformed is returned for a descriptor that is not a JSON object.
	ErrMalformed = errors.New("repo: descriptor is not a JSON object")
	// ErrMissingID is returned for a descriptor without a usable "id".
	ErrMissingID = errors.New("repo: descriptor has no id")
)

// PatchEntry is one patch advertised by a repository.
type PatchEntry struct {
	ID    string
	Title string
	Flags Flags
}

// Repo is a parsed repository descriptor.
type Repo struct {
	ID        string
	Title     string
	Contact   string
	Servers   []string
	Neighbors []string
	Patches   []PatchEntry
}

// LocalDescriptorPath returns repos/<id>/repo.js.
func LocalDescriptorPath(id string) string {
	return "repos/" + id + "/" + DescriptorFile
}

// LoadFromJSON builds a Repo from a parsed descriptor.
func LoadFromJSON(v jsonval.Value) (*Repo, error) {
	js, ok := jsonval.AsObject(v)
	if !ok {
		return nil, ErrMalformed
	}
	r := &Repo{}
	r.ID, _ = js.GetString("id")
	if r.ID == "" {
		return nil, ErrMissingID
	}
	r.Title, _ = js.GetString("title")
	r.Contact, _ = js.GetString("contact")
	r.Servers, _ = js.GetStrings("servers")
	r.Neighbors, _ = js.GetStrings("neighbors")

	if pv, ok := js.Get("patches"); ok {
		if patches, ok := jsonval.AsObject(pv); ok {
			patches.Range(func(id string, v jsonval.Value) bool {
				r.Patches = append(r.Patches, parseEntry(id, v))
				return true
			})
		}
	}
	return r, nil
}

func parseEntry(id string, v jsonval.Value) PatchEntry {
	e := PatchEntry{ID: id}
	switch t := v.(type) {
	case jsonval.String:
		e.Title = string(t)
	case *jsonval.Object:
		e.Title, _ = t.GetString("title")
		if names, ok := t.GetStrings("flags"); ok {
			e.Flags = ParseFlags(names)
		}
	}
	return e
}

// Parse parses raw descriptor bytes.
func Parse(data []byte) (*Repo, error) {
	v, err := jsonval.Parse(data)
	if err != nil {
		return nil, err
	}
	return LoadFromJSON(v)
}

// Load reads the descriptor at path.
func Load(path string) (*Repo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Patch returns the advertised entry for id.
func (r *Repo) Patch(id string) (PatchEntry, bool) {
	for _, e := range r.Patches {
		if e.ID == id {
			return e, true
		}
	}
	return PatchEntry{}, false
}

// ToJSON renders the descriptor. Patches without flags are written as a
// plain title string.
func (r *Repo) ToJSON() *jsonval.Object {
	js := jsonval.NewObject()
	js.Set("id", jsonval.String(r.ID))
	if r.Title != "" {
		js.Set("title", jsonval.String(r.Title))
	}
	if r.Contact != "" {
		js.Set("contact", jsonval.String(r.Contact))
	}
	if r.Servers != nil {
		js.Set("servers", stringArray(r.Servers))
	}
	if r.Neighbors != nil {
		js.Set("neighbors", stringArray(r.Neighbors))
	}
	if r.Patches != nil {
		patches := jsonval.NewObject()
		for _, e := range r.Patches {
			if e.Flags == 0 {
				patches.Set(e.ID, jsonval.String(e.Title))
				continue
			}
			entry := jsonval.NewObject()
			entry.Set("title", jsonval.String(e.Title))
			entry.Set("flags", stringArray(e.Flags.Strings()))
			patches.Set(e.ID, entry)
		}
		js.Set("patches", patches)
	}
	return js
}

// Write stores r as <root>/repos/<id>/repo.js with 4-space indentation.
func Write(root string, r *Repo) error {
	if r == nil || r.ID == "" {
		return ErrMissingID
	}
	data, err := jsonval.MarshalIndent(r.ToJSON(), "    ", false)
	if err != nil {
		return err
	}
	path := filepath.Join(root, filepath.FromSlash(LocalDescriptorPath(r.ID)))
	return fsutil.WriteFileAtomic(path, append(data, '\n'))
}

func stringArray(list []string) jsonval.Array {
	out := make(jsonval.Array, len(list))
	for i, s := range list {
		out[i] = jsonval.String(s)
	}
	return out
}
