package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(m map[string]string) Env {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	c := Bind(fs, mapEnv(nil))
	require.NoError(t, fs.Parse(nil))
	assert.Equal(t, ".", c.Root)
	assert.Equal(t, DefaultDiscoveryURL, c.DiscoveryURL)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 15*time.Second, c.FetchTimeout)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, 256, c.JSONCache)
	assert.Empty(t, c.RunConfig)
}

func TestEnvThenFlags(t *testing.T) {
	env := mapEnv(map[string]string{
		"PATCHSTACK_ROOT":              " /srv/patcher ",
		"PATCHSTACK_RUNCFG":            "th06.js",
		"PATCHSTACK_FETCH_TIMEOUT":     "30",
		"PATCHSTACK_DISCOVERY_WORKERS": "bogus",
		"PATCHSTACK_JSON_CACHE":        "0",
		"PATCHSTACK_LOG_LEVEL":         "debug",
	})
	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	c := Bind(fs, env)
	require.NoError(t, fs.Parse([]string{"-log-level", "warn", "-fetch-timeout", "2s"}))
	assert.Equal(t, "/srv/patcher", c.Root)
	assert.Equal(t, "th06.js", c.RunConfig)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, 2*time.Second, c.FetchTimeout)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, 0, c.JSONCache)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PATCHSTACK_TEST_ONLY_KEY=from-file\n"), 0o644))
	t.Setenv("PATCHSTACK_TEST_ONLY_KEY", "")
	require.NoError(t, os.Unsetenv("PATCHSTACK_TEST_ONLY_KEY"))

	LoadDotEnv(path)
	assert.Equal(t, "from-file", os.Getenv("PATCHSTACK_TEST_ONLY_KEY"))

	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
