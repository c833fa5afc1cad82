package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchstack/internal/diff"
	"patchstack/internal/graph"
	"patchstack/internal/patch"
	"patchstack/internal/stack"
	"patchstack/internal/ziputil"
)

func newPatch(t *testing.T, root, name string, files map[string]string) *patch.Patch {
	t.Helper()
	dir := filepath.Join(root, "repos", "demo", name)
	for fn, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(fn))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	p, err := patch.Init(dir, nil, 0)
	require.NoError(t, err)
	return p
}

func demoStack(t *testing.T) *stack.Stack {
	t.Helper()
	root := t.TempDir()
	base := newPatch(t, root, "base", map[string]string{
		"patch.js":       `{"id":"base","title":"Base","ignore":["skip.bin"]}`,
		"th06/s.js":      `{"a":1,"b":{"c":1}}`,
		"th06/s.v2.js":   `{"v":"build"}`,
		"th06/title.png": "base-png",
		"skip.bin":       "hidden",
		"th06/broken.js": `{`,
		"th06/single.js": `{"only":true}`,
	})
	lang := newPatch(t, root, "lang", map[string]string{
		"patch.js":       `{"id":"lang","dependencies":["base"]}`,
		"th06/s.js":      `{"b":{"d":2}}`,
		"th06/title.png": "lang-png",
	})
	return stack.New(stack.Options{Game: "th06", Build: "v2"}, base, &patch.Patch{}, lang)
}

func TestCollect(t *testing.T) {
	s := demoStack(t)
	exp, err := Collect(s, Options{Layers: true})
	require.NoError(t, err)

	m := exp.Manifest
	assert.Equal(t, ManifestVersion, m.Version)
	assert.Equal(t, "th06", m.Game)
	require.Len(t, m.Patches, 3)
	assert.Equal(t, "demo/base", m.Patches[0].Label)
	assert.True(t, m.Patches[1].Inert)
	assert.Equal(t, []string{"skip.bin"}, m.Ignored)

	paths := make([]string, 0, len(m.Files))
	byPath := map[string]ManFile{}
	for _, f := range m.Files {
		paths = append(paths, f.Path)
		byPath[f.Path] = f
	}
	assert.Equal(t, []string{"th06/s.js", "th06/single.js", "th06/title.png"}, paths)

	s1 := byPath["th06/s.js"]
	assert.Equal(t, KindJSON, s1.Kind)
	assert.Equal(t, []int{0, 2}, s1.Sources)
	assert.Equal(t, "layers/th06_s.js.patch", s1.Layers)
	data, ok := exp.Data("th06/s.js")
	require.True(t, ok)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": {\n    \"c\": 1,\n    \"d\": 2\n  },\n  \"v\": \"build\"\n}\n", string(data))
	assert.Equal(t, len(data), s1.Size)
	assert.Len(t, s1.Hash, 64)

	body := exp.LayerDiffs["th06_s.js.patch"]
	assert.Contains(t, body, "--- /dev/null")
	assert.Contains(t, body, "+++ 0:demo/base/th06/s.js")
	assert.Contains(t, body, "+++ 0:demo/base/th06/s.v2.js")
	assert.Contains(t, body, "+++ 2:demo/lang/th06/s.js")
	assert.Contains(t, body, `+    "d": 2`)

	assert.Empty(t, byPath["th06/single.js"].Layers)

	png := byPath["th06/title.png"]
	assert.Equal(t, KindBinary, png.Kind)
	assert.Equal(t, []int{2}, png.Sources)
	data, _ = exp.Data("th06/title.png")
	assert.Equal(t, "lang-png", string(data))
}

func TestCollectFoldsVariantOnlyFiles(t *testing.T) {
	root := t.TempDir()
	p := newPatch(t, root, "only", map[string]string{
		"th06/extra.v2.png": "variant",
		"th06/cfg.v2.js":    `{"k":1}`,
	})
	exp, err := Collect(stack.New(stack.Options{Build: "v2"}, p), Options{})
	require.NoError(t, err)

	paths := make([]string, 0, len(exp.Manifest.Files))
	for _, f := range exp.Manifest.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"th06/cfg.js", "th06/extra.png"}, paths)
	data, ok := exp.Data("th06/extra.png")
	require.True(t, ok)
	assert.Equal(t, "variant", string(data))
	data, _ = exp.Data("th06/cfg.js")
	assert.Equal(t, "{\n  \"k\": 1\n}\n", string(data))
}

func TestWriteExportIsReproducible(t *testing.T) {
	s := demoStack(t)
	g := graph.FromPatches(s.Patches())
	dir := t.TempDir()

	write := func(name string) []byte {
		exp, err := Collect(s, Options{Layers: true})
		require.NoError(t, err)
		out := filepath.Join(dir, "nested", name)
		require.NoError(t, WriteExport(out, exp, g, diff.Options{}))
		b, err := os.ReadFile(out)
		require.NoError(t, err)
		return b
	}
	a := write("a.zip")
	b := write("b.zip")
	assert.Equal(t, a, b)

	files, names, err := ziputil.ReadAll(filepath.Join(dir, "nested", "a.zip"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"manifest.json",
		"graph.json",
		"README.md",
		"TOC.md",
		"files/th06/s.js",
		"files/th06/single.js",
		"files/th06/title.png",
		"layers/th06_s.js.patch",
	}, names)

	var m Manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &m))
	assert.Len(t, m.Files, 3)
	assert.Equal(t, "lang-png", string(files["files/th06/title.png"]))
	assert.True(t, strings.Contains(string(files["TOC.md"]), "| 1 | th06/s.js | json | 0, 2 |"))
	assert.Contains(t, string(files["README.md"]), "**layers/**")
}

func TestSafeDiffBaseAndUniqueNames(t *testing.T) {
	assert.Equal(t, "th06_a_b.js", safeDiffBase("th06/a/b.js"))
	assert.Equal(t, "a_b_c", safeDiffBase(`a:b*c`))
	assert.Equal(t, "patch", safeDiffBase("./"))

	used := map[string]struct{}{}
	first := uniquePatchName("x", "abcd1234", used)
	second := uniquePatchName("x", "abcd1234", used)
	third := uniquePatchName("x", "abcd1234", used)
	assert.Equal(t, "x.patch", first)
	assert.Equal(t, "x-abcd1234.patch", second)
	assert.NotEqual(t, second, third)
	assert.True(t, strings.HasPrefix(third, "x-abcd1234-"))
}
