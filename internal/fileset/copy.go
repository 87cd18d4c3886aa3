package fileset

import (
	"fmt"
	"os"
	"path/filepath"

	"fileset/internal/console"
	"fileset/internal/pattern"
)

// CopyOptions controls Index.CopyTo.
type CopyOptions struct {
	DestDir    string
	DestPrefix string // prepended to each relpath, e.g. "example/stage/"
	RemoveDest bool   // wipe DestDir before starting
	AlwaysCopy bool   // never try a hard link
	Logger     console.Logger
}

// CopyTo materializes every entry accepted by pred into opts.DestDir:
// directories are created, symlinks are recreated with their literal
// target, and regular files are hard linked with a copy fallback.
func (ix *Index) CopyTo(pred *pattern.Predicate, opts CopyOptions) error {
	log := opts.Logger
	if log == nil {
		log = console.Discard
	}

	if opts.RemoveDest {
		log.Printf("rmtree %s\n", opts.DestDir)
		if err := os.RemoveAll(opts.DestDir); err != nil {
			return fmt.Errorf("remove %s: %w", opts.DestDir, err)
		}
	}
	if err := os.MkdirAll(opts.DestDir, 0o755); err != nil {
		return err
	}

	for _, e := range ix.Matches(pred) {
		destPath := filepath.Join(opts.DestDir, filepath.FromSlash(opts.DestPrefix+e.RelPath))
		if err := materialize(e, destPath, opts, log); err != nil {
			return fmt.Errorf("materialize %s: %w", e.RelPath, err)
		}
	}
	return nil
}

func materialize(e *Entry, destPath string, opts CopyOptions, log console.Logger) error {
	switch e.Kind {
	case KindDir:
		log.Printf("mkdir %s\n", destPath)
		return os.MkdirAll(destPath, 0o755)

	case KindSymlink:
		if !opts.RemoveDest {
			if err := RemoveIfExists(destPath); err != nil {
				return err
			}
		}
		target, err := os.Readlink(e.AbsPath)
		if err != nil {
			return err
		}
		log.Printf("symlink %s -> %s\n", target, destPath)
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		return os.Symlink(target, destPath)

	default:
		if !opts.RemoveDest {
			if err := RemoveIfExists(destPath); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		if !opts.AlwaysCopy {
			err := os.Link(e.AbsPath, destPath)
			if err == nil {
				log.Printf("hardlink %s -> %s\n", e.AbsPath, destPath)
				return nil
			}
			log.Printf("hardlink %s -> %s failed (%v), falling back to copy\n", e.AbsPath, destPath, err)
		}
		log.Printf("copy %s -> %s\n", e.AbsPath, destPath)
		return CopyFile(e.AbsPath, destPath)
	}
}
