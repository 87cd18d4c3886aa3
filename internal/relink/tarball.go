package relink

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"fileset/internal/fileset"
)

// TarballExt maps a compression name to the tarball extension. "none"
// means no tarball is written.
func TarballExt(compression string) (string, error) {
	switch compression {
	case "", "none":
		return "", nil
	case "xz":
		return ".tar.xz", nil
	case "zstd":
		return ".tar.zst", nil
	case "gz":
		return ".tar.gz", nil
	default:
		return "", fmt.Errorf("unknown tarball compression %q", compression)
	}
}

func compressor(compression string, w io.Writer) (io.WriteCloser, error) {
	switch compression {
	case "xz":
		return xz.NewWriter(w)
	case "zstd":
		return zstd.NewWriter(w)
	case "gz":
		return pgzip.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown tarball compression %q", compression)
	}
}

// WriteTarball archives dir into out. Member names start with the base name
// of dir.
func WriteTarball(dir, out, compression string) error {
	ix := fileset.NewIndex()
	if err := ix.Scan(dir); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create tarball: %w", err)
	}
	defer f.Close()

	cw, err := compressor(compression, f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)
	top := filepath.Base(dir)
	for _, e := range ix.Entries() {
		if err := fileset.WriteTarEntry(tw, e, top+"/"+e.RelPath); err != nil {
			return fmt.Errorf("add %s: %w", e.RelPath, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}
	return f.Close()
}
