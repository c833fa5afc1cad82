package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayersMatchResolveJSON(t *testing.T) {
	p1 := newPatch(t, "", map[string]string{"th06/stage1.js": `{"a":1,"b":{"c":1}}`})
	skip := newPatch(t, "", map[string]string{"other.js": `{}`})
	p2 := newPatch(t, "", map[string]string{
		"th06/stage1.js":        `{"b":{"d":2}}`,
		"th06/stage1.v1.00a.js": `{"a":3}`,
		"th06/broken.js":        `{`,
	})
	s := New(Options{Build: "v1.00a"}, p1, skip, p2)

	layers, err := s.Layers("th06/stage1.js")
	require.NoError(t, err)
	require.Len(t, layers, 3)

	assert.Equal(t, 0, layers[0].Index)
	assert.Equal(t, `{"a":1,"b":{"c":1}}`, mustJSON(t, layers[0].Result))
	assert.Equal(t, 2, layers[1].Index)
	assert.Equal(t, "th06/stage1.js", layers[1].Name)
	assert.Equal(t, `{"b":{"d":2}}`, mustJSON(t, layers[1].Fragment))
	assert.Equal(t, `{"a":1,"b":{"c":1,"d":2}}`, mustJSON(t, layers[1].Result))
	assert.Equal(t, "th06/stage1.v1.00a.js", layers[2].Name)

	want, err := s.ResolveJSON("th06/stage1.js")
	require.NoError(t, err)
	assert.Equal(t, mustJSON(t, want), mustJSON(t, layers[2].Result))

	_, err = s.Layers("th06/broken.js")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Layers("nope.js")
	assert.ErrorIs(t, err, ErrNotFound)
}
