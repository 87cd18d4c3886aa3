// Package artifact builds artifact directories from component descriptors,
// packs them into manifest-first archives and flattens them back into plain
// trees.
package artifact

// ComponentPatterns is the default include/exclude set of one component.
type ComponentPatterns struct {
	Includes []string
	Excludes []string
}

// Defaults maps component names to their default patterns. It is built once
// by NewDefaults and never modified afterwards.
type Defaults struct {
	byName map[string]ComponentPatterns
}

// NewDefaults returns the standard component table. The lib, dev and run
// sets are cross layered: each excludes what the others (and doc) include,
// so one directory can be scanned per component and every file lands in
// exactly one of them.
func NewDefaults() *Defaults {
	dbg := []string{"**/*.dbg"}
	dev := []string{
		"**/*.a",
		"**/cmake/**",
		"**/include/**",
		"**/share/modulefiles/**",
		"**/pkgconfig/**",
	}
	lib := []string{
		"**/*.dll",
		"**/*.dylib",
		"**/*.dylib.*",
		"**/*.so",
		"**/*.so.*",
	}
	var run []string
	doc := []string{"**/share/doc/**"}

	return &Defaults{byName: map[string]ComponentPatterns{
		"dbg": {Includes: dbg},
		"dev": {Includes: dev, Excludes: concat(lib, run, doc)},
		"lib": {Includes: lib, Excludes: concat(dev, run, doc)},
		"run": {Includes: run, Excludes: concat(dev, lib, doc)},
		"doc": {Includes: doc},
	}}
}

// Get returns a copy of the defaults for component. Unknown components have
// no defaults.
func (d *Defaults) Get(component string) ComponentPatterns {
	if d == nil {
		return ComponentPatterns{}
	}
	p := d.byName[component]
	return ComponentPatterns{
		Includes: concat(p.Includes),
		Excludes: concat(p.Excludes),
	}
}

// Names lists the known components.
func (d *Defaults) Names() []string {
	return []string{"dbg", "dev", "lib", "run", "doc"}
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
