package artifact

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"fileset/internal/console"
	"fileset/internal/fileset"
	"fileset/internal/pattern"
)

// FlattenOptions controls Flatten.
type FlattenOptions struct {
	Logger console.Logger
}

// Flatten merges artifacts into outputDir with their subtree prefixes
// stripped. Each input is either an artifact directory or an archive written
// by Pack. Existing files and symlinks in outputDir are replaced;
// directories are merged.
func Flatten(outputDir string, inputs []string, opts FlattenOptions) error {
	log := opts.Logger
	if log == nil {
		log = console.Discard
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return err
		}
		if info.IsDir() {
			err = flattenDir(outputDir, in, log)
		} else {
			err = flattenArchive(outputDir, in, log)
		}
		if err != nil {
			return fmt.Errorf("flatten %s: %w", in, err)
		}
	}
	return nil
}

// flattenDir copies each existing subtree in manifest order. Entries that
// fall under a longer manifest subtree are left to that subtree, so nested
// subtrees flatten the same way stripPrefix extracts them from an archive.
func flattenDir(outputDir, dir string, log console.Logger) error {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	relpaths, paths := manifest.ExistingSubtrees(dir)
	for i, rel := range relpaths {
		ix := fileset.NewIndex()
		if err := ix.Scan(paths[i]); err != nil {
			return err
		}
		pred, err := pattern.NewPredicate(nil, nestedExcludes(rel, manifest.Subtrees), nil)
		if err != nil {
			return err
		}
		err = ix.CopyTo(pred, fileset.CopyOptions{DestDir: outputDir, Logger: log})
		if err != nil {
			return fmt.Errorf("subtree %s: %w", rel, err)
		}
	}
	return nil
}

// nestedExcludes returns globs for the parts of subtree owned by longer
// manifest subtrees below it.
func nestedExcludes(subtree string, all []string) []string {
	var out []string
	for _, other := range all {
		if inner, ok := strings.CutPrefix(other, subtree+"/"); ok && inner != "" {
			out = append(out, inner+"/**")
		}
	}
	return out
}

func flattenArchive(outputDir, path string, log console.Logger) error {
	ar, err := openArchive(path)
	if err != nil {
		return err
	}
	defer ar.Close()

	hdr, err := ar.Next()
	if err == io.EOF || (err == nil && hdr.Name != ManifestName) {
		return ErrManifestNotFirst
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	prefixes, err := readManifestMember(ar.Reader)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(outputDir)
	if err != nil {
		return err
	}
	for {
		hdr, err := ar.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		// Archives holding several artifacts carry one manifest per artifact.
		if hdr.Name == ManifestName {
			more, err := readManifestMember(ar.Reader)
			if err != nil {
				return err
			}
			prefixes = append(prefixes, more...)
			continue
		}

		scoped, ok := stripPrefix(hdr.Name, prefixes)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMember, hdr.Name)
		}
		if scoped == "" {
			continue
		}
		dest := filepath.Join(root, filepath.FromSlash(scoped))
		if !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return fmt.Errorf("illegal member path in archive: %s", hdr.Name)
		}
		log.Printf("extract %s\n", scoped)
		if err := extractMember(ar.Reader, hdr, dest); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
	}
}

func readManifestMember(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest member: %w", err)
	}
	return ParseManifest(data).Subtrees, nil
}

// stripPrefix removes the longest "{prefix}/" that name starts with and any
// trailing slash.
func stripPrefix(name string, prefixes []string) (string, bool) {
	best := -1
	for i, p := range prefixes {
		if strings.HasPrefix(name, p+"/") && (best < 0 || len(p) > len(prefixes[best])) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return strings.TrimSuffix(name[len(prefixes[best])+1:], "/"), true
}

func extractMember(tr *tar.Reader, hdr *tar.Header, dest string) error {
	if info, err := os.Lstat(dest); err == nil {
		if !info.IsDir() {
			if err := os.Remove(dest); err != nil {
				return err
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeReg:
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Chmod(os.FileMode(0o644 | hdr.Mode&0o111)); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Chtimes(dest, hdr.ModTime, hdr.ModTime)
	case tar.TypeDir:
		return os.MkdirAll(dest, 0o755)
	case tar.TypeSymlink:
		if err := os.Symlink(hdr.Linkname, dest); err != nil {
			return err
		}
		tv := unix.NsecToTimeval(hdr.ModTime.UnixNano())
		if err := unix.Lutimes(dest, []unix.Timeval{tv, tv}); err != nil {
			console.Debugf("Warning: failed to set times for symlink %s: %v (continuing)\n", dest, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: type %q", ErrUnsupportedMember, hdr.Typeflag)
	}
}
