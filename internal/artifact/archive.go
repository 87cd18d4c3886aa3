package artifact

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"fileset/internal/console"
	"fileset/internal/fileset"
)

var (
	// ErrManifestNotFirst is returned when an archive does not start with
	// the artifact manifest.
	ErrManifestNotFirst = errors.New("artifact archive must have " + ManifestName + " as its first member")
	// ErrUnknownMember is returned for an archive member outside every
	// manifest subtree.
	ErrUnknownMember = errors.New("archive member not in manifest")
	// ErrUnsupportedMember is returned for member types other than regular
	// files, directories and symlinks.
	ErrUnsupportedMember = errors.New("unsupported archive member")
)

// PackOptions controls Pack.
type PackOptions struct {
	HashFile      string // write the archive digest here when set
	HashAlgorithm string
	Logger        console.Logger
}

// Pack writes the artifact directories into one xz compressed tar at
// archivePath. Each artifact contributes its manifest first, followed by
// every entry of its existing subtrees named "{subtree}/{relpath}".
func Pack(archivePath string, artifactDirs []string, opts PackOptions) error {
	log := opts.Logger
	if log == nil {
		log = console.Discard
	}
	if opts.HashFile != "" {
		if _, err := NewHash(opts.HashAlgorithm); err != nil {
			return err
		}
	}
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale archive: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	if err := packInto(out, artifactDirs, log); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if opts.HashFile != "" {
		digest, err := HashFile(archivePath, opts.HashAlgorithm)
		if err != nil {
			return err
		}
		if err := WriteHashFile(opts.HashFile, digest); err != nil {
			return fmt.Errorf("write hash file: %w", err)
		}
		log.Printf("%s digest %s\n", archivePath, digest)
	}
	return nil
}

func packInto(w io.Writer, artifactDirs []string, log console.Logger) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	for _, dir := range artifactDirs {
		if err := packArtifact(tw, dir, log); err != nil {
			return fmt.Errorf("pack %s: %w", dir, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return xw.Close()
}

func packArtifact(tw *tar.Writer, dir string, log console.Logger) error {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	if err := addFile(tw, filepath.Join(dir, ManifestName), ManifestName); err != nil {
		return err
	}

	relpaths, paths := manifest.ExistingSubtrees(dir)
	for i, rel := range relpaths {
		ix := fileset.NewIndex()
		if err := ix.Scan(paths[i]); err != nil {
			return err
		}
		bar := console.NewProgress(int64(ix.Len()), rel)
		for _, e := range ix.Entries() {
			name := rel + "/" + e.RelPath
			log.Printf("add %s\n", name)
			if err := fileset.WriteTarEntry(tw, e, name); err != nil {
				return err
			}
			bar.Add(1)
		}
		bar.Finish()
	}
	return nil
}

func addFile(tw *tar.Writer, path, name string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	return fileset.WriteTarContents(tw, path)
}

type archiveReader struct {
	*tar.Reader
	f *os.File
}

func (r *archiveReader) Close() error { return r.f.Close() }

func openArchive(path string) (*archiveReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	xr, err := xz.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("xz reader for %s: %w", path, err)
	}
	return &archiveReader{Reader: tar.NewReader(xr), f: f}, nil
}

// ListArchive returns the member names of an artifact archive in storage
// order.
func ListArchive(path string) ([]string, error) {
	ar, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer ar.Close()

	var names []string
	for {
		hdr, err := ar.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		names = append(names, hdr.Name)
	}
}
