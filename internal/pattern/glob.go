// Package pattern compiles recursive glob patterns and evaluates
// include/exclude/force-include predicates over slash-separated relative
// paths.
//
// The pattern language is a small subset of the pathlib one:
//
//	lib*.so  "*" is any run of characters within one path segment
//	lib?.so  "?" is the same as "*" (a run, not a single character)
//	a/**/b   zero or more whole segments between a and b
//	**/b     zero or more leading segments
//	a/**     a itself and anything below it
//
// Character classes are not supported; every other character is literal.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Glob is one compiled recursive glob pattern.
type Glob struct {
	Source string
	re     *regexp.Regexp
}

// Compile turns a glob into an anchored matcher. Rewrites are applied to the
// escaped pattern in a fixed order: interior, leading and trailing "**"
// first, then the segment-local wildcards.
func Compile(glob string) (*Glob, error) {
	expr := "^" + regexp.QuoteMeta(glob) + "$"
	expr = strings.ReplaceAll(expr, `/\*\*/`, "/(.*/)?")
	if strings.HasPrefix(expr, `^\*\*/`) {
		expr = "^(.*/)?" + strings.TrimPrefix(expr, `^\*\*/`)
	}
	if strings.HasSuffix(expr, `/\*\*$`) {
		expr = strings.TrimSuffix(expr, `/\*\*$`) + "(/.*)?$"
	}
	expr = strings.ReplaceAll(expr, `\*`, "[^/]*")
	expr = strings.ReplaceAll(expr, `\?`, "[^/]*")

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", glob, err)
	}
	return &Glob{Source: glob, re: re}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(glob string) *Glob {
	g, err := Compile(glob)
	if err != nil {
		panic(err)
	}
	return g
}

// Match reports whether relpath matches the whole pattern.
func (g *Glob) Match(relpath string) bool {
	return g.re.MatchString(relpath)
}

func (g *Glob) String() string { return g.Source }

// CompileAll compiles a list of globs, stopping at the first failure.
func CompileAll(globs []string) ([]*Glob, error) {
	out := make([]*Glob, 0, len(globs))
	for _, s := range globs {
		g, err := Compile(s)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
