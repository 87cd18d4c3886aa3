package pattern

// Predicate decides whether a relative path is selected. Force includes win
// over everything; a non-empty include list gates; excludes reject.
type Predicate struct {
	includes      []*Glob
	excludes      []*Glob
	forceIncludes []*Glob
}

// NewPredicate compiles the three pattern lists.
func NewPredicate(includes, excludes, forceIncludes []string) (*Predicate, error) {
	inc, err := CompileAll(includes)
	if err != nil {
		return nil, err
	}
	exc, err := CompileAll(excludes)
	if err != nil {
		return nil, err
	}
	force, err := CompileAll(forceIncludes)
	if err != nil {
		return nil, err
	}
	return &Predicate{includes: inc, excludes: exc, forceIncludes: force}, nil
}

// MatchAll returns a predicate that accepts every path.
func MatchAll() *Predicate { return &Predicate{} }

// Match applies the precedence: force include, include gate, exclude.
// A nil predicate accepts everything.
func (p *Predicate) Match(relpath string) bool {
	if p == nil {
		return true
	}
	for _, g := range p.forceIncludes {
		if g.Match(relpath) {
			return true
		}
	}
	if len(p.includes) > 0 && !anyMatch(p.includes, relpath) {
		return false
	}
	if anyMatch(p.excludes, relpath) {
		return false
	}
	return true
}

// Empty reports whether the predicate has no patterns at all.
func (p *Predicate) Empty() bool {
	return p == nil || len(p.includes)+len(p.excludes)+len(p.forceIncludes) == 0
}

func anyMatch(globs []*Glob, relpath string) bool {
	for _, g := range globs {
		if g.Match(relpath) {
			return true
		}
	}
	return false
}
