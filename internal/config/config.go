// Package config resolves process settings shared by all subcommands.
// Values come from, in increasing priority: built-in defaults, a .env file,
// PATCHSTACK_* environment variables, and command-line flags.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultDiscoveryURL is the seed used by "discover" without an argument.
const DefaultDiscoveryURL = "https://srv.thpatch.net/"

// Config holds the shared settings.
type Config struct {
	// Root is the directory containing repos/.
	Root         string
	RunConfig    string
	DiscoveryURL string
	LogLevel     string
	FetchTimeout time.Duration
	Workers      int
	// JSONCache bounds the resolved-JSON cache; 0 disables it.
	JSONCache int
}

// Env looks up environment variables.
type Env func(key string) string

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Bind registers the shared flags on fs with defaults taken from env, and
// returns the Config the flags write into.
func Bind(fs *flag.FlagSet, env Env) *Config {
	if env == nil {
		env = os.Getenv
	}
	c := &Config{}
	fs.StringVar(&c.Root, "root", firstNonEmpty(env("PATCHSTACK_ROOT"), "."), "directory containing repos/")
	fs.StringVar(&c.RunConfig, "runcfg", env("PATCHSTACK_RUNCFG"), "run configuration file")
	fs.StringVar(&c.DiscoveryURL, "discovery-url", firstNonEmpty(env("PATCHSTACK_DISCOVERY_URL"), DefaultDiscoveryURL), "repository discovery seed URL")
	fs.StringVar(&c.LogLevel, "log-level", firstNonEmpty(env("PATCHSTACK_LOG_LEVEL"), "info"), "debug, info, warn or error")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", envDuration(env("PATCHSTACK_FETCH_TIMEOUT"), 15*time.Second), "per-download timeout")
	fs.IntVar(&c.Workers, "workers", envInt(env("PATCHSTACK_DISCOVERY_WORKERS"), 8), "concurrent discovery fetches")
	fs.IntVar(&c.JSONCache, "json-cache", envInt(env("PATCHSTACK_JSON_CACHE"), 256), "resolved JSON documents to cache (0 = off)")
	return c
}

func envInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func envDuration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
