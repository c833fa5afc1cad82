package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchstack/internal/patch"
)

func deps(list ...string) []patch.Descriptor {
	out := make([]patch.Descriptor, len(list))
	for i, s := range list {
		out[i] = patch.ParseDependency(s)
	}
	return out
}

func TestRepoOf(t *testing.T) {
	assert.Equal(t, "thpatch", RepoOf("/games/patcher/repos/thpatch/lang_en/"))
	assert.Equal(t, "thpatch", RepoOf("repos/thpatch/lang_en"))
	assert.Empty(t, RepoOf("/somewhere/else/"))
}

func TestFromPatches(t *testing.T) {
	base := &patch.Patch{Archive: "/t/repos/thpatch/base_tsa/", ID: "base_tsa"}
	lang := &patch.Patch{Archive: "/t/repos/thpatch/lang_en/", ID: "lang_en",
		Dependencies: deps("base_tsa", "nmlgc/script_latin", "late")}
	late := &patch.Patch{Archive: "/t/repos/thpatch/late/", ID: "late"}
	loose := &patch.Patch{Archive: "/elsewhere/mine/", Dependencies: deps("base_tsa")}

	g := FromPatches([]*patch.Patch{base, lang, {}, late, loose})
	assert.Equal(t, []string{"mine", "thpatch/base_tsa", "thpatch/lang_en", "thpatch/late"}, g.Nodes)
	assert.Equal(t, [][2]string{
		{"mine", "base_tsa"},
		{"thpatch/lang_en", "nmlgc/script_latin"},
		{"thpatch/lang_en", "thpatch/base_tsa"},
		{"thpatch/lang_en", "thpatch/late"},
	}, g.Edges)
	assert.Equal(t, [][2]string{
		{"mine", "base_tsa"},
		{"thpatch/lang_en", "nmlgc/script_latin"},
	}, g.Missing)
	assert.Equal(t, [][2]string{{"thpatch/lang_en", "thpatch/late"}}, g.Late)

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"mine", "thpatch/base_tsa", "thpatch/late", "thpatch/lang_en"}, order)
}

func TestOrderDetectsCycle(t *testing.T) {
	a := &patch.Patch{Archive: "repos/r/a/", ID: "a", Dependencies: deps("b")}
	b := &patch.Patch{Archive: "repos/r/b/", ID: "b", Dependencies: deps("r/a")}
	c := &patch.Patch{Archive: "repos/r/c/", ID: "c"}
	_, err := FromPatches([]*patch.Patch{a, b, c}).Order()
	assert.ErrorIs(t, err, ErrCycle)
}
