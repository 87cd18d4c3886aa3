package fileset

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
)

// WriteTarEntry appends e to tw under name. Directories get a trailing
// slash, symlinks keep their literal target and regular files carry their
// mode, mtime and contents.
func WriteTarEntry(tw *tar.Writer, e *Entry, name string) error {
	info, err := e.Info()
	if err != nil {
		return err
	}
	var link string
	if e.Kind == KindSymlink {
		if link, err = os.Readlink(e.AbsPath); err != nil {
			return fmt.Errorf("readlink %s: %w", e.AbsPath, err)
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if e.Kind == KindDir {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if e.Kind != KindFile {
		return nil
	}
	return WriteTarContents(tw, e.AbsPath)
}

// WriteTarContents copies the file at path into the current tar member.
func WriteTarContents(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
