package hooks

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"patchstack/internal/jsonval"
)

func appendHook(s string) HookFunc {
	return func(fn string, data []byte, diff jsonval.Value) ([]byte, error) {
		return append(bytes.Clone(data), s...), nil
	}
}

type sizedHook struct{ HookFunc }

func (sizedHook) Size(fn string, diff jsonval.Value, diffSize int) int { return 100 }

func TestMatchKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("*.msg", appendHook("1"))
	r.Register("*.anm", appendHook("x"))
	r.Register(`th06\*.MSG`, appendHook("2"))
	r.Register("*", appendHook("3"))

	assert.Len(t, r.Match("th06/e01.msg"), 3)
	out, changed := r.Run("th06/e01.msg", []byte("d"), nil)
	assert.True(t, changed)
	assert.Equal(t, "d123", string(out))

	out, changed = r.Run("th07/e01.msg", []byte("d"), nil)
	assert.True(t, changed)
	assert.Equal(t, "d13", string(out))
	assert.Equal(t, 4, r.Len())
}

func TestRunDiscardsFailingHook(t *testing.T) {
	r := NewRegistry()
	r.Register("*.js", appendHook("a"))
	r.Register("*.js", HookFunc(func(string, []byte, jsonval.Value) ([]byte, error) {
		return []byte("garbage"), errors.New("boom")
	}))
	r.Register("*.js", appendHook("b"))

	out, changed := r.Run("x.js", []byte(">"), nil)
	assert.True(t, changed)
	assert.Equal(t, ">ab", string(out))
}

func TestRunPassesDiffAndUnchanged(t *testing.T) {
	var seen jsonval.Value
	r := NewRegistry()
	r.Register("*.txt", HookFunc(func(fn string, data []byte, diff jsonval.Value) ([]byte, error) {
		seen = diff
		return nil, nil
	}))
	diff := jsonval.MustParse(`{"k":1}`)
	out, changed := r.Run("a.txt", []byte("same"), diff)
	assert.False(t, changed)
	assert.Equal(t, "same", string(out))
	assert.True(t, jsonval.Equal(diff, seen))

	out, changed = r.Run("a.bin", []byte("same"), diff)
	assert.False(t, changed)
	assert.Equal(t, "same", string(out))
}

func TestExtraSize(t *testing.T) {
	list := []Hook{appendHook("a"), sizedHook{appendHook("b")}}
	assert.Equal(t, 10+100, ExtraSize(list, "f", nil, 10))
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	assert.Nil(t, r.Match("x"))
	assert.Equal(t, 0, r.Len())
}
