package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"fileset/internal/fileset"
)

var artifactNameRe = regexp.MustCompile(`^([^_]+)_([^_]+)_([^_]+)(_.+)?$`)

// Name identifies an artifact directory "{name}_{component}_{family}[_x]".
type Name struct {
	Name         string
	Component    string
	TargetFamily string
	Suffix       string // unparsed trailer including its leading "_"
}

// ParseName splits an artifact directory name. It reports false for names
// that do not follow the convention.
func ParseName(s string) (Name, bool) {
	m := artifactNameRe.FindStringSubmatch(s)
	if m == nil {
		return Name{}, false
	}
	return Name{Name: m[1], Component: m[2], TargetFamily: m[3], Suffix: m[4]}, true
}

func (n Name) String() string {
	return n.Name + "_" + n.Component + "_" + n.TargetFamily + n.Suffix
}

// Catalog is the set of artifact directories found under one directory,
// merged into a single index of their subtree contents.
type Catalog struct {
	Dir       string
	Artifacts []Name
	Index     *fileset.Index
}

// OpenCatalog scans dir for artifact directories that carry a manifest and
// are accepted by filter (nil accepts everything). Every existing subtree of
// every accepted artifact is indexed, in directory name order.
func OpenCatalog(dir string, filter func(Name) bool) (*Catalog, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read artifact dir: %w", err)
	}
	c := &Catalog{Dir: dir, Index: fileset.NewIndex()}
	for _, d := range children {
		if !d.IsDir() {
			continue
		}
		name, ok := ParseName(d.Name())
		if !ok || (filter != nil && !filter(name)) {
			continue
		}
		subdir := filepath.Join(dir, d.Name())
		manifest, err := ReadManifest(subdir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		_, paths := manifest.ExistingSubtrees(subdir)
		if len(paths) == 0 {
			continue
		}
		c.Artifacts = append(c.Artifacts, name)
		for _, p := range paths {
			if err := c.Index.Scan(p); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// TargetFamilies returns the sorted distinct target families, leaving out
// "generic".
func (c *Catalog) TargetFamilies() []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range c.Artifacts {
		if n.TargetFamily == "generic" || seen[n.TargetFamily] {
			continue
		}
		seen[n.TargetFamily] = true
		out = append(out, n.TargetFamily)
	}
	sort.Strings(out)
	return out
}
