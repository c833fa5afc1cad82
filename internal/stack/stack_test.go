package stack

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchstack/internal/hooks"
	"patchstack/internal/jsonval"
	"patchstack/internal/patch"
)

// newPatch creates an archive under t.TempDir with the given files and
// returns the loaded patch.
func newPatch(t *testing.T, desc string, files map[string]string) *patch.Patch {
	t.Helper()
	dir := t.TempDir()
	if desc != "" {
		files = withFile(files, "patch.js", desc)
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	p, err := patch.Init(dir, nil, 0)
	require.NoError(t, err)
	return p
}

func withFile(files map[string]string, name, content string) map[string]string {
	out := map[string]string{name: content}
	for k, v := range files {
		out[k] = v
	}
	return out
}

func mustJSON(t *testing.T, v jsonval.Value) string {
	t.Helper()
	out, err := jsonval.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestResolveBinaryScenarioA(t *testing.T) {
	base := newPatch(t, `{"id":"base","ignore":["*.bmp"]}`, map[string]string{
		"a.bmp": "base-a",
		"b.txt": "base-b",
	})
	tl := newPatch(t, `{"id":"translation"}`, map[string]string{
		"a.bmp": "tl-a",
	})
	s := New(Options{}, base, tl)

	res, err := s.ResolveBinary("a.bmp")
	require.NoError(t, err)
	assert.Equal(t, "tl-a", string(res.Data))
	assert.Equal(t, 1, res.Index)
	assert.Same(t, tl, res.Patch)

	res, err = s.ResolveBinary("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "base-b", string(res.Data))
	assert.Equal(t, 0, res.Index)

	_, err = s.ResolveBinary("c.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveBinaryBlacklistSkipsOnlyOwnPatch(t *testing.T) {
	low := newPatch(t, `{"id":"low"}`, map[string]string{"f.png": "low"})
	mid := newPatch(t, `{"id":"mid","ignore":["*.PNG"]}`, map[string]string{"f.png": "mid"})
	high := newPatch(t, `{"id":"high","ignore":["f.*"]}`, map[string]string{"f.png": "high"})
	s := New(Options{}, low, mid, high)

	res, err := s.ResolveBinary("f.png")
	require.NoError(t, err)
	assert.Equal(t, "low", string(res.Data))
	assert.Equal(t, 0, res.Index)

	// Only blacklisted copies means not found, never a JSON-style fallback.
	s = New(Options{}, mid, high)
	_, err = s.ResolveBinary("f.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveBinaryLastWins(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{"x.dat": "11111111"})
	p2 := newPatch(t, "", map[string]string{"x.dat": "22"})
	res, err := New(Options{}, p1, p2).ResolveBinary("x.dat")
	require.NoError(t, err)
	assert.Equal(t, "22", string(res.Data))
}

func TestResolveJSONScenarioB(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{"stringdefs.js": `{"a":"1","b":"2"}`})
	p2 := newPatch(t, "", map[string]string{"stringdefs.js": `{"b":"22","c":"3"}`})
	s := New(Options{}, p1, p2)

	v, err := s.ResolveJSON("stringdefs.js")
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"22","c":"3"}`, mustJSON(t, v))
}

func TestResolveJSONMergesInStackOrder(t *testing.T) {
	frags := []string{
		`{"a":{"x":1,"y":[1,2]},"s":"one"}`,
		`{"a":{"y":[3]},"s":"two","n":null}`,
		`{"a":{"z":true},"s":{"obj":1}}`,
	}
	var ps []*patch.Patch
	var want jsonval.Value
	for _, f := range frags {
		ps = append(ps, newPatch(t, "", map[string]string{"f.js": f}))
		want = jsonval.Merge(want, jsonval.MustParse(f))
	}
	s := New(Options{}, ps...)
	got, err := s.ResolveJSON("f.js")
	require.NoError(t, err)
	assert.True(t, jsonval.Equal(want, got))
	assert.Equal(t, `{"a":{"x":1,"y":[3],"z":true},"s":{"obj":1},"n":null}`, mustJSON(t, got))

	swapped, err := New(Options{}, ps[1], ps[0], ps[2]).ResolveJSON("f.js")
	require.NoError(t, err)
	assert.False(t, jsonval.Equal(got, swapped))
}

func TestResolveJSONIgnoresBlacklistAndSkipsMalformed(t *testing.T) {
	p1 := newPatch(t, `{"ignore":["*.js"]}`, map[string]string{"f.js": `{"a":1}`})
	bad := newPatch(t, `{"id":"bad"}`, map[string]string{"f.js": `{"a":`})
	p3 := newPatch(t, "", map[string]string{"f.js": `{"b":2}`})
	inert, err := patch.Init("", nil, 0)
	require.NoError(t, err)
	s := New(Options{}, p1, inert, bad, p3)

	v, err := s.ResolveJSON("f.js")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, mustJSON(t, v))

	_, err = New(Options{}, bad).ResolveJSON("f.js")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveJSONIsIdempotent(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{"f.js": `{"o":{"a":1}}`})
	p2 := newPatch(t, "", map[string]string{"f.js": `{"o":{"b":2}}`})
	s := New(Options{}, p1, p2)

	first, err := s.ResolveJSON("f.js")
	require.NoError(t, err)
	obj, _ := jsonval.AsObject(first)
	obj.Set("mutated", jsonval.Bool(true))

	second, err := s.ResolveJSON("f.js")
	require.NoError(t, err)
	assert.Equal(t, `{"o":{"a":1,"b":2}}`, mustJSON(t, second))
}

func TestForBuild(t *testing.T) {
	assert.Equal(t, "th06/title.v1.00a.png", ForBuild("th06/title.png", "v1.00a"))
	assert.Equal(t, "th06/stage.v2.std.jdiff", ForBuild("th06/stage.std.jdiff", "v2"))
	assert.Equal(t, "th06.5/noext.v2", ForBuild("th06.5/noext", "v2"))
}

func TestBaseOf(t *testing.T) {
	for _, fn := range []string{"th06/title.png", "th06/stage.std.jdiff", "th06.5/noext"} {
		base, ok := BaseOf(ForBuild(fn, "v2"), "v2")
		assert.True(t, ok, fn)
		assert.Equal(t, fn, base)
	}
	for _, fn := range []string{"th06/title.png", "th06/title.v2x.png", "th06.v2/title.png"} {
		_, ok := BaseOf(fn, "v2")
		assert.False(t, ok, fn)
	}
	_, ok := BaseOf("title.v2.png", "")
	assert.False(t, ok)
}

func TestBuildChain(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{
		"th06/f.js":       `{"a":"generic","g":1}`,
		"th06/f.v2.js":    `{"a":"build"}`,
		"th06/img.png":    "generic",
		"th06/img.v2.png": "build",
	})
	p2 := newPatch(t, "", map[string]string{
		"th06/f.js":    `{"a":"p2-generic"}`,
		"th06/img.png": "p2-generic",
	})
	s := New(Options{Game: "th06", Build: "v2"}, p1, p2)
	assert.Equal(t, []string{"th06/f.js", "th06/f.v2.js"}, s.Chain("th06/f.js"))

	v, err := s.ResolveGameJSON("f.js")
	require.NoError(t, err)
	assert.Equal(t, `{"a":"p2-generic","g":1}`, mustJSON(t, v))

	res, err := s.ResolveGameBinary("img.png")
	require.NoError(t, err)
	assert.Equal(t, "p2-generic", string(res.Data))

	res, err = New(Options{Game: "th06", Build: "v2"}, p1).ResolveGameBinary("img.png")
	require.NoError(t, err)
	assert.Equal(t, "build", string(res.Data))
	assert.Equal(t, "th06/img.v2.png", res.Name)
}

func TestResolveFileRunsHooksWithDiff(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{
		"th06/e01.msg":       "orig",
		"th06/e01.msg.jdiff": `{"line":"one"}`,
	})
	p2 := newPatch(t, "", map[string]string{
		"th06/e01.msg.jdiff": `{"extra":"two"}`,
	})
	reg := hooks.NewRegistry()
	var gotDiff jsonval.Value
	reg.Register("*.msg", hooks.HookFunc(func(fn string, data []byte, diff jsonval.Value) ([]byte, error) {
		gotDiff = diff
		return bytes.ToUpper(data), nil
	}))
	s := New(Options{Game: "th06", Hooks: reg}, p1, p2)

	res, err := s.ResolveFile("e01.msg")
	require.NoError(t, err)
	assert.Equal(t, "ORIG", string(res.Data))
	assert.Equal(t, `{"line":"one","extra":"two"}`, mustJSON(t, gotDiff))

	out, changed := s.PatchGameFile("e02.msg", []byte("game"))
	assert.True(t, changed)
	assert.Equal(t, "GAME", string(out))
	assert.Nil(t, gotDiff)

	out, changed = s.PatchGameFile("e02.anm", []byte("game"))
	assert.False(t, changed)
	assert.Equal(t, "game", string(out))

	_, err = s.ResolveFile("missing.msg")
	assert.True(t, errors.Is(err, ErrNotFound))
}

type fixedSizer struct{ n int }

func (fixedSizer) Patch(string, []byte, jsonval.Value) ([]byte, error) { return nil, nil }
func (f fixedSizer) Size(string, jsonval.Value, int) int { return f.n }

func TestGameFileSize(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{"th06/e01.msg.jdiff": `{"a":"12345"}`})
	p2 := newPatch(t, "", map[string]string{"th06/e01.msg.jdiff": `{"b":1}`})
	reg := hooks.NewRegistry()
	reg.Register("*.msg", hooks.HookFunc(func(string, []byte, jsonval.Value) ([]byte, error) { return nil, nil }))
	reg.Register("e01.*", fixedSizer{n: 100})
	s := New(Options{Game: "th06", Hooks: reg}, p1, p2)

	diffSize := len(`{"a":"12345"}`) + len(`{"b":1}`)
	assert.Equal(t, 10+diffSize+100, s.GameFileSize("e01.msg", 10))
	assert.Equal(t, 10+100, s.GameFileSize("e01.anm", 10))
	assert.Equal(t, 10, s.GameFileSize("e02.anm", 10))
}

func TestMissingArchives(t *testing.T) {
	present := newPatch(t, "", nil)
	gone := &patch.Patch{Archive: filepath.ToSlash(filepath.Join(t.TempDir(), "gone")) + "/"}
	inert := &patch.Patch{}
	s := New(Options{}, present, inert, gone)
	assert.Equal(t, []string{gone.Archive}, s.MissingArchives())
	assert.Equal(t, 3, s.Len())
}

func TestCoveredBy(t *testing.T) {
	p := newPatch(t, `{"id":"lang_en"}`, map[string]string{"th06.js": `{}`})
	q := newPatch(t, `{"id":"base"}`, nil)
	s := New(Options{Game: "th06"}, p, q)
	assert.True(t, s.CoveredBy("lang_en"))
	assert.False(t, s.CoveredBy("base"))
	assert.False(t, s.CoveredBy("nope"))
	assert.False(t, New(Options{}, p).CoveredBy("lang_en"))
}

func TestListing(t *testing.T) {
	base := newPatch(t, `{"ignore":["*.bmp"]}`, map[string]string{"a.bmp": "1", "b.js": "{}"})
	tl := newPatch(t, "", map[string]string{"b.js": "{}", "c.txt": "x"})
	hidden := newPatch(t, `{"ignore":["c.txt"]}`, map[string]string{"c.txt": "y"})
	s := New(Options{}, base, tl, hidden)

	entries, err := s.Listing(ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "a.bmp", entries[0].Name)
	assert.Equal(t, -1, entries[0].Owner)
	_, ok := entries[0].OwnerFile()
	assert.False(t, ok)

	assert.Equal(t, "b.js", entries[1].Name)
	assert.Equal(t, []int{0, 1}, entries[1].Providers)
	assert.Equal(t, 1, entries[1].Owner)

	assert.Equal(t, "c.txt", entries[2].Name)
	assert.Equal(t, 1, entries[2].Owner)
	f, ok := entries[2].OwnerFile()
	require.True(t, ok)
	assert.Equal(t, int64(1), f.Size)
}

func TestListingOwnerFollowsBuildChain(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{"img.png": "generic", "img.v2.png": "build"})
	p2 := newPatch(t, `{"ignore":["img.v2.png"]}`, map[string]string{"img.png": "p2", "img.v2.png": "hidden"})
	p3 := newPatch(t, "", map[string]string{"only.v2.png": "variant"})
	s := New(Options{Build: "v2"}, p1, p2, p3)

	entries, err := s.Listing(ListOptions{Hash: true})
	require.NoError(t, err)
	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}

	for _, name := range []string{"img.png", "only.png"} {
		res, err := s.ResolveBinary(name)
		require.NoError(t, err)
		if e, ok := byName[name]; ok {
			assert.Equal(t, res.Index, e.Owner, name)
		}
	}
	img := byName["img.png"]
	assert.Equal(t, 1, img.Owner)
	f, ok := img.OwnerFile()
	require.True(t, ok)
	assert.Equal(t, "img.png", f.RelPath)
	assert.Equal(t, 0, byName["img.v2.png"].Owner)
	assert.Equal(t, 2, byName["only.v2.png"].Owner)
}

func TestListingFollowsSymlinks(t *testing.T) {
	p := newPatch(t, "", map[string]string{"real/a.bin": "data"})
	if err := os.Symlink(filepath.Join(p.Archive, "real", "a.bin"), filepath.Join(p.Archive, "linked.bin")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	s := New(Options{}, p)

	res, err := s.ResolveBinary("linked.bin")
	require.NoError(t, err)
	assert.Equal(t, "data", string(res.Data))

	entries, err := s.Listing(ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "linked.bin", entries[0].Name)
	assert.Equal(t, 0, entries[0].Owner)
	assert.Equal(t, "real/a.bin", entries[1].Name)
}

func TestManagerCachesPerSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.js"), []byte(`{"v":1}`), 0o644))
	p, err := patch.Init(dir, nil, 0)
	require.NoError(t, err)

	m := NewManager(8)
	_, err = m.ResolveJSON("f.js")
	assert.ErrorIs(t, err, ErrNotFound)

	m.Install(New(Options{}, p))
	v, err := m.ResolveJSON("f.js")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, mustJSON(t, v))

	// Mutating the returned copy must not leak into the cache.
	obj, _ := jsonval.AsObject(v)
	obj.Set("v", jsonval.Number("99"))

	// A changed file is not observed until the stack is rebuilt.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.js"), []byte(`{"v":2}`), 0o644))
	old := m.Current()
	v, err = m.ResolveJSON("f.js")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, mustJSON(t, v))

	require.NoError(t, m.Rebuild(func() (*Stack, error) { return New(Options{}, p), nil }))
	v, err = m.ResolveJSON("f.js")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, mustJSON(t, v))

	// Readers holding the old snapshot keep its cached view.
	v, err = old.ResolveJSON("f.js")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, mustJSON(t, v))

	err = m.Rebuild(func() (*Stack, error) { return nil, errors.New("bad config") })
	assert.Error(t, err)
	assert.Equal(t, 1, m.Stack().Len())
}

func TestManagerConcurrentRebuild(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{"f.js": `{"a":1}`, "x.bin": "1"})
	p2 := newPatch(t, "", map[string]string{"f.js": `{"b":2}`, "x.bin": "2"})
	m := NewManager(4)
	m.Install(New(Options{}, p1))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				v, err := m.ResolveJSON("f.js")
				if !assert.NoError(t, err) {
					return
				}
				js, err := jsonval.Marshal(v)
				assert.NoError(t, err)
				assert.Contains(t, []string{`{"a":1}`, `{"a":1,"b":2}`}, string(js))
				res, err := m.ResolveBinary("x.bin")
				if assert.NoError(t, err) {
					assert.Contains(t, []string{"1", "2"}, string(res.Data))
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		stack := New(Options{}, p1, p2)
		if i%2 == 1 {
			stack = New(Options{}, p1)
		}
		require.NoError(t, m.Rebuild(func() (*Stack, error) { return stack, nil }))
	}
	wg.Wait()
}
