// Package diff renders unified diffs between listings using
// github.com/pmezard/go-difflib/difflib.
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

const defaultContext = 3

// Options controls diff generation.
type Options struct {
	// Context is the number of context lines per hunk; 0 means 3.
	Context int
	// MaxBytes caps the combined input size; 0 means no limit.
	MaxBytes int
}

// Unified returns the unified diff turning a into b. Identical inputs
// yield an empty string.
func Unified(aName, bName string, a, b []byte, opt Options) (string, error) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return "", fmt.Errorf("diff: inputs exceed %d bytes", opt.MaxBytes)
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = defaultContext
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	return difflib.GetUnifiedDiffString(u)
}

// splitLinesKeepNL keeps the newline of each line so hunks render verbatim.
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
