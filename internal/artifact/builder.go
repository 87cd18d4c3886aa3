package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"fileset/internal/console"
	"fileset/internal/fileset"
	"fileset/internal/pattern"
)

// Builder assembles one component of a descriptor into an artifact
// directory.
type Builder struct {
	Root       string // directory all subtree paths are relative to
	Descriptor *Descriptor
	Defaults   *Defaults
	Logger     console.Logger
}

// Build wipes outputDir and fills it with every subtree record of component,
// each below its own relpath, then writes the manifest. Optional subtrees
// that do not exist are left out of the manifest.
func (b *Builder) Build(component, outputDir string) (*Manifest, error) {
	log := b.Logger
	if log == nil {
		log = console.Discard
	}
	defaults := b.Defaults
	if defaults == nil {
		defaults = NewDefaults()
	}

	if err := os.RemoveAll(outputDir); err != nil {
		return nil, fmt.Errorf("clean output dir: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	manifest := &Manifest{}
	for _, st := range b.Descriptor.Component(component) {
		basedir := filepath.Join(b.Root, filepath.FromSlash(st.Path))
		if _, err := os.Stat(basedir); err != nil {
			if st.Optional && os.IsNotExist(err) {
				log.Printf("skipping optional subtree %s\n", st.Path)
				continue
			}
			return nil, fmt.Errorf("subtree %s: %w", st.Path, err)
		}
		manifest.Subtrees = append(manifest.Subtrees, st.Path)

		pred, err := b.predicate(defaults, component, st)
		if err != nil {
			return nil, err
		}
		ix := fileset.NewIndex()
		if err := ix.Scan(basedir); err != nil {
			return nil, err
		}
		err = ix.CopyTo(pred, fileset.CopyOptions{
			DestDir:    outputDir,
			DestPrefix: st.Path + "/",
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("subtree %s: %w", st.Path, err)
		}
	}

	if err := manifest.Write(outputDir); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return manifest, nil
}

// predicate layers the record's own patterns before the component defaults.
func (b *Builder) predicate(defaults *Defaults, component string, st Subtree) (*pattern.Predicate, error) {
	includes := append([]string(nil), st.Include...)
	excludes := append([]string(nil), st.Exclude...)
	if st.DefaultPatterns {
		d := defaults.Get(component)
		includes = append(includes, d.Includes...)
		excludes = append(excludes, d.Excludes...)
	}
	pred, err := pattern.NewPredicate(includes, excludes, st.ForceInclude)
	if err != nil {
		return nil, fmt.Errorf("subtree %s: %w", st.Path, err)
	}
	return pred, nil
}
