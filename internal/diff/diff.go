// Package diff renders unified diffs between successive states of a resolved
// JSON file, showing what each patch of a stack contributes.
// It uses github.com/pmezard/go-difflib/difflib to produce classic unified
// patches (---/+++ headers, @@ hunks, lines prefixed with ' ', '-', '+').
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"patchstack/internal/jsonval"
)

// Options controls patch generation behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded,
	// a minimal placeholder patch is returned and oversize=true.
	// 0 means "no limit".
	MaxBytes int

	// Context controls the number of context lines in unified hunks.
	// If 0, default to 4.
	Context int
}

// Unified produces a classic unified patch for a↦b.
// Returns the patch body and a flag indicating it was omitted due to size.
// Identical inputs yield an empty body.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && (len(a)+len(b)) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  contextLines(opt),
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return omitted(aName, bName), false
	}
	return s, false
}

// Added produces a patch that adds the entire content b (no old version).
func Added(bName string, b []byte, opt Options) (string, bool) {
	return Unified("/dev/null", bName, nil, b, opt)
}

// JSON diffs two JSON values rendered the way exports store them: two-space
// indentation, sorted keys, trailing newline. A nil a is diffed as an added
// file.
func JSON(aName, bName string, a, b jsonval.Value, opt Options) (string, bool, error) {
	bb, err := Render(b)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", bName, err)
	}
	if a == nil {
		body, over := Added(bName, bb, opt)
		return body, over, nil
	}
	ab, err := Render(a)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", aName, err)
	}
	body, over := Unified(aName, bName, ab, bb, opt)
	return body, over, nil
}

// Render formats v as exports store it. A nil v renders as nothing.
func Render(v jsonval.Value) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	out, err := jsonval.MarshalIndent(v, "  ", true)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func contextLines(opt Options) int {
	if opt.Context <= 0 {
		return 4
	}
	return opt.Context
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
