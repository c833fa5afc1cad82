// Package runconfig reads and edits run configuration files, which name the
// game and the ordered patch list a stack is built from:
//
//	{
//	  "game": "th06",
//	  "build": "v1.02h",
//	  "patches": [
//	    {"archive": "repos/thpatch/base_tsa/"},
//	    {"archive": "repos/thpatch/lang_en/", "ignore": ["*.png"]}
//	  ]
//	}
//
// Every key of a patch entry besides "archive" overrides the patch's own
// patch.js.
package runconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"patchstack/internal/fsutil"
	"patchstack/internal/hooks"
	"patchstack/internal/jsonval"
	"patchstack/internal/patch"
	"patchstack/internal/stack"
)

var (
	// ErrInvalid is returned for a file that is not a JSON object.
	ErrInvalid = errors.New("runconfig: not a JSON object")
	// ErrDuplicate is returned when adding an archive that is already listed.
	ErrDuplicate = errors.New("runconfig: archive already in the patch list")
	// ErrIndex is returned for a patch index outside the list.
	ErrIndex = errors.New("runconfig: patch index out of range")
)

// Entry is one element of the "patches" array.
type Entry struct {
	// Archive is empty for entries without a usable archive; they become
	// inert stack slots.
	Archive string
	// Override is the whole entry object.
	Override jsonval.Value
}

// Config is a parsed run configuration.
type Config struct {
	Path    string
	Game    string
	Build   string
	Title   string
	Patches []Entry
}

// Load reads the run configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// Parse parses run configuration bytes.
func Parse(data []byte) (*Config, error) {
	data, err := firstValue(data)
	if err != nil {
		return nil, &patch.MalformedError{Path: "run configuration", Err: err}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrInvalid
	}
	c := &Config{
		Game:  root.Get("game").String(),
		Build: root.Get("build").String(),
		Title: root.Get("title").String(),
	}
	var perr error
	root.Get("patches").ForEach(func(_, v gjson.Result) bool {
		e := Entry{}
		if v.IsObject() {
			e.Archive = v.Get("archive").String()
			e.Override, perr = jsonval.Parse([]byte(v.Raw))
			if perr != nil {
				return false
			}
		}
		c.Patches = append(c.Patches, e)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return c, nil
}

// BuildOptions configures BuildStack.
type BuildOptions struct {
	// Root resolves relative archives. Empty means the working directory.
	Root  string
	Hooks *hooks.Registry
}

// BuildStack loads every listed patch, in order, into a new stack.
func (c *Config) BuildStack(opts BuildOptions) (*stack.Stack, error) {
	patches := make([]*patch.Patch, 0, len(c.Patches))
	for i, e := range c.Patches {
		archive := e.Archive
		if archive != "" && opts.Root != "" && !filepath.IsAbs(filepath.FromSlash(archive)) {
			archive = filepath.Join(opts.Root, filepath.FromSlash(archive))
		}
		p, err := patch.Init(archive, e.Override, i)
		if err != nil {
			return nil, fmt.Errorf("patch %d (%s): %w", i, e.Archive, err)
		}
		patches = append(patches, p)
	}
	return stack.New(stack.Options{Game: c.Game, Build: c.Build, Hooks: opts.Hooks}, patches...), nil
}

// AddPatch appends {"archive": archive} to the patch list of the file at
// path, creating the file if needed.
func AddPatch(path, archive string) error {
	data, err := readOrEmpty(path)
	if err != nil {
		return err
	}
	dup := false
	gjson.GetBytes(data, "patches").ForEach(func(_, v gjson.Result) bool {
		if v.Get("archive").String() == archive {
			dup = true
			return false
		}
		return true
	})
	if dup {
		return fmt.Errorf("%s: %w", archive, ErrDuplicate)
	}
	if !gjson.GetBytes(data, "patches").IsArray() {
		if data, err = sjson.SetRawBytes(data, "patches", []byte("[]")); err != nil {
			return err
		}
	}
	out, err := sjson.SetBytes(data, "patches.-1", map[string]any{"archive": archive})
	if err != nil {
		return err
	}
	return write(path, out)
}

// RemovePatch deletes the entry at index from the patch list.
func RemovePatch(path string, index int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	n := int(gjson.GetBytes(data, "patches.#").Int())
	if index < 0 || index >= n {
		return fmt.Errorf("%d: %w", index, ErrIndex)
	}
	out, err := sjson.DeleteBytes(data, fmt.Sprintf("patches.%d", index))
	if err != nil {
		return err
	}
	return write(path, out)
}

// SetString sets a top-level string key such as "game" or "build".
func SetString(path, key, value string) error {
	data, err := readOrEmpty(path)
	if err != nil {
		return err
	}
	out, err := sjson.SetBytes(data, key, value)
	if err != nil {
		return err
	}
	return write(path, out)
}

func readOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, err
	}
	if data, err = firstValue(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalid)
	}
	return data, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// firstValue returns the first JSON value of data, read the way
// jsonval.Parse reads it: a leading BOM is skipped and trailing bytes are
// dropped.
func firstValue(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	var raw json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		if _, perr := jsonval.Parse(data); perr != nil {
			return nil, perr
		}
		return nil, err
	}
	return raw, nil
}

func write(path string, data []byte) error {
	data = bytes.TrimSpace(data)
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err == nil {
		data = buf.Bytes()
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'))
}
