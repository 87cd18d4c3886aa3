// Package fileset indexes directory trees into flat relative-path maps and
// materializes selected entries into destination trees.
package fileset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"fileset/internal/pattern"
)

// Kind is the filesystem object type of an Entry.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// Entry is one object found under a scanned base directory.
type Entry struct {
	RelPath string // slash separated, relative to its base directory
	AbsPath string
	Kind    Kind

	dirent fs.DirEntry
}

// Name is the final path element.
func (e *Entry) Name() string { return e.dirent.Name() }

// Executable reports whether any exec bit is set on a regular file. The
// lstat is deferred to this call; scanning never stats files.
func (e *Entry) Executable() bool {
	if e.Kind != KindFile {
		return false
	}
	info, err := e.dirent.Info()
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// Info returns the lstat result for the entry.
func (e *Entry) Info() (fs.FileInfo, error) { return e.dirent.Info() }

// Index is an insertion-ordered map of relative path to Entry. Scanning a
// second base directory that contains an already indexed relpath replaces
// that entry and keeps its original position.
type Index struct {
	keys    []string
	entries map[string]*Entry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// Scan walks baseDir depth first and adds every directory, symlink and
// regular file below it. Symlinks are never followed, so a symlink to a
// directory is a leaf entry. Other file types are skipped.
func (ix *Index) Scan(baseDir string) error {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", baseDir, err)
	}
	return ix.scanChildren(abs, "")
}

func (ix *Index) scanChildren(dir, prefix string) error {
	// d_type only, sorted by name.
	children, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, d := range children {
		relpath := prefix + d.Name()
		abspath := dir + string(os.PathSeparator) + d.Name()
		typ := d.Type()
		switch {
		case typ&fs.ModeSymlink != 0:
			ix.put(&Entry{RelPath: relpath, AbsPath: abspath, Kind: KindSymlink, dirent: d})
		case typ.IsDir():
			ix.put(&Entry{RelPath: relpath, AbsPath: abspath, Kind: KindDir, dirent: d})
			if err := ix.scanChildren(abspath, relpath+"/"); err != nil {
				return err
			}
		case typ.IsRegular():
			ix.put(&Entry{RelPath: relpath, AbsPath: abspath, Kind: KindFile, dirent: d})
		default:
			// fifos, sockets and devices are not part of any tree we ship
		}
	}
	return nil
}

func (ix *Index) put(e *Entry) {
	if _, ok := ix.entries[e.RelPath]; !ok {
		ix.keys = append(ix.keys, e.RelPath)
	}
	ix.entries[e.RelPath] = e
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int { return len(ix.keys) }

// Get looks up one relpath.
func (ix *Index) Get(relpath string) (*Entry, bool) {
	e, ok := ix.entries[relpath]
	return e, ok
}

// Entries returns every entry in index order.
func (ix *Index) Entries() []*Entry {
	out := make([]*Entry, 0, len(ix.keys))
	for _, k := range ix.keys {
		out = append(out, ix.entries[k])
	}
	return out
}

// Matches returns the entries accepted by pred, in index order.
func (ix *Index) Matches(pred *pattern.Predicate) []*Entry {
	var out []*Entry
	for _, k := range ix.keys {
		if pred.Match(k) {
			out = append(out, ix.entries[k])
		}
	}
	return out
}
