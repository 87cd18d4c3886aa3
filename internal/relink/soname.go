package relink

import (
	"debug/elf"
	"fmt"
	"os/exec"

	"fileset/internal/executor"
)

// SonameReader returns the SONAME embedded in a shared library. Symlinks are
// followed.
type SonameReader interface {
	Soname(path string) (string, error)
}

// PatchelfReader asks patchelf --print-soname.
type PatchelfReader struct {
	exec *executor.Executor
	tool string
}

// NewPatchelfReader resolves tool on PATH. A missing tool is returned as
// executor.ErrToolNotFound.
func NewPatchelfReader(ex *executor.Executor, tool string) (*PatchelfReader, error) {
	if tool == "" {
		tool = "patchelf"
	}
	path, err := executor.LookPath(tool)
	if err != nil {
		return nil, err
	}
	return &PatchelfReader{exec: ex, tool: path}, nil
}

func (r *PatchelfReader) Soname(path string) (string, error) {
	out, err := r.exec.Output(exec.Command(r.tool, "--print-soname", path))
	if err != nil {
		return "", fmt.Errorf("read soname of %s: %w", path, err)
	}
	return out, nil
}

// ELFReader reads DT_SONAME directly from the dynamic section.
type ELFReader struct{}

func (ELFReader) Soname(path string) (string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return "", fmt.Errorf("read soname of %s: %w", path, err)
	}
	defer f.Close()
	names, err := f.DynString(elf.DT_SONAME)
	if err != nil {
		return "", fmt.Errorf("read soname of %s: %w", path, err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// NewSonameReader picks a reader by name: "patchelf" (default) or "elf".
func NewSonameReader(kind string, ex *executor.Executor, patchelf string) (SonameReader, error) {
	switch kind {
	case "", "patchelf":
		return NewPatchelfReader(ex, patchelf)
	case "elf":
		return ELFReader{}, nil
	default:
		return nil, fmt.Errorf("unknown soname reader %q", kind)
	}
}
