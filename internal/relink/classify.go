// Package relink re-layers a unified install tree into non-overlapping
// package trees: shared libraries are kept only under their SONAME,
// executable symlinks become launcher stubs, and a waterfall ledger ensures
// every relpath is physically materialized at most once.
package relink

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileType is the closed set of classifications the engine acts on.
type FileType int

const (
	TypeOther FileType = iota
	TypeDir
	TypeSymlink
	TypeExecutable
	TypeSharedLib
	TypeArchive
	TypeText
)

func (t FileType) String() string {
	switch t {
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	case TypeExecutable:
		return "exe"
	case TypeSharedLib:
		return "so"
	case TypeArchive:
		return "ar"
	case TypeText:
		return "text"
	default:
		return "other"
	}
}

var arMagic = []byte("!<arch>\n")

// textSuffixes are never inspected further.
var textSuffixes = []string{".txt", ".h", ".hpp"}

// Classify inspects path without following a final symlink.
func Classify(path string) (FileType, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return TypeOther, err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return TypeSymlink, nil
	case info.IsDir():
		return TypeDir, nil
	case !info.Mode().IsRegular():
		return TypeOther, nil
	}
	for _, s := range textSuffixes {
		if strings.HasSuffix(path, s) {
			return TypeText, nil
		}
	}
	return classifyContents(path)
}

func classifyContents(path string) (FileType, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeOther, err
	}
	defer f.Close()

	head := make([]byte, len(arMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return TypeOther, fmt.Errorf("read %s: %w", path, err)
	}
	head = head[:n]
	if bytes.Equal(head, arMagic) {
		return TypeArchive, nil
	}
	if !bytes.HasPrefix(head, []byte(elf.ELFMAG)) {
		return TypeOther, nil
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		return TypeOther, nil
	}
	defer ef.Close()
	switch ef.Type {
	case elf.ET_EXEC:
		return TypeExecutable, nil
	case elf.ET_DYN:
		if isPIE(ef) {
			return TypeExecutable, nil
		}
		return TypeSharedLib, nil
	}
	return TypeOther, nil
}

// isPIE reports whether an ET_DYN object is a position independent
// executable rather than a shared library.
func isPIE(ef *elf.File) bool {
	if flags, err := ef.DynValue(elf.DT_FLAGS_1); err == nil {
		for _, v := range flags {
			if elf.DynFlag1(v)&elf.DF_1_PIE != 0 {
				return true
			}
		}
	}
	// Older linkers do not set DF_1_PIE; an interpreter without a SONAME
	// still marks an executable.
	hasInterp := false
	for _, p := range ef.Progs {
		if p.Type == elf.PT_INTERP {
			hasInterp = true
			break
		}
	}
	if !hasInterp {
		return false
	}
	sonames, _ := ef.DynString(elf.DT_SONAME)
	return len(sonames) == 0
}
