// Package glob implements the wildcard matching used by patch ignore lists
// and hook registrations.
//
// Semantics:
//   - '*' matches any run of characters, including '/'
//   - '?' matches exactly one character
//   - matching is case-insensitive and covers the whole name
//   - '\' in names and patterns is treated as '/'
package glob

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Pattern is a compiled wildcard.
type Pattern struct {
	src string
	rx  *regexp.Regexp
}

// Compile translates a wildcard into a matcher. Regex metacharacters in the
// wildcard are matched literally.
func Compile(wildcard string) *Pattern {
	norm := Normalize(wildcard)
	esc := regexp.QuoteMeta(norm)
	esc = strings.ReplaceAll(esc, `\*`, `.*`)
	esc = strings.ReplaceAll(esc, `\?`, `.`)
	return &Pattern{src: norm, rx: regexp.MustCompile(`(?is)^` + esc + `$`)}
}

// String returns the normalized wildcard.
func (p *Pattern) String() string { return p.src }

// Match reports whether name matches the whole pattern.
func (p *Pattern) Match(name string) bool {
	if p == nil {
		return false
	}
	return p.rx.MatchString(Normalize(name))
}

// Normalize converts backslashes to forward slashes.
func Normalize(s string) string {
	return strings.ReplaceAll(s, `\`, "/")
}

// CacheSize bounds the number of compiled wildcards Match keeps.
const CacheSize = 1024

var cache = newCache(CacheSize)

func newCache(size int) *lru.Cache[string, *Pattern] {
	c, err := lru.New[string, *Pattern](size)
	if err != nil {
		panic(err)
	}
	return c
}

// Match compiles wildcard (memoized) and matches name against it.
func Match(wildcard, name string) bool {
	p, ok := cache.Get(wildcard)
	if !ok {
		p = Compile(wildcard)
		cache.Add(wildcard, p)
	}
	return p.Match(name)
}

// MatchAny reports whether name matches any of the wildcards.
func MatchAny(wildcards []string, name string) bool {
	for _, w := range wildcards {
		if w == "" {
			continue
		}
		if Match(w, name) {
			return true
		}
	}
	return false
}
