package unit

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter decides which units the catalog picks up, by symbolic name.
type Filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewFilter builds a Filter from glob patterns. No include patterns means
// every name not excluded is included.
func NewFilter(includeGlobs, excludeGlobs []string) (*Filter, error) {
	incs, err := compileGlobs(includeGlobs)
	if err != nil {
		return nil, err
	}
	excs, err := compileGlobs(excludeGlobs)
	if err != nil {
		return nil, err
	}
	return &Filter{include: incs, exclude: excs}, nil
}

func compileGlobs(globs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(globs))
	for _, g := range globs {
		if strings.TrimSpace(g) == "" {
			continue
		}
		r, err := regexp.Compile(globToRegex(g))
		if err != nil {
			return nil, fmt.Errorf("compile glob %s: %w", g, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Include reports whether name passes, with a reason when it does not.
// Exclusions win over inclusions. A nil Filter includes everything.
func (f *Filter) Include(name string) (bool, string) {
	if f == nil {
		return true, ""
	}
	for _, rx := range f.exclude {
		if rx.MatchString(name) {
			return false, "excluded_by_pattern"
		}
	}
	if len(f.include) == 0 {
		return true, ""
	}
	for _, rx := range f.include {
		if rx.MatchString(name) {
			return true, ""
		}
	}
	return false, "not_in_includes"
}

// globToRegex converts a shell-style glob into an anchored regex.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '|', '^', '$', '{', '}', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteString("$")
	return b.String()
}
