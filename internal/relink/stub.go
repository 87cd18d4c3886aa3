package relink

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"fileset/internal/executor"
	"fileset/internal/fileset"
)

//go:embed stub.c.in
var stubTemplate string

// StubGenerator writes an executable at out that behaves like a symlink to
// relTarget, resolved against the directory out is installed in. resolved is
// the absolute path the original symlink points at.
type StubGenerator interface {
	Generate(out, relTarget, resolved string) error
}

// StubSource renders the launcher C source for relTarget.
func StubSource(relTarget string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(relTarget)
	return strings.Replace(stubTemplate, "@EXEC_RELPATH@", escaped, 1)
}

// CCStubGenerator compiles the launcher with a C compiler. The stub is
// linked as PIE so it can locate itself through dladdr.
type CCStubGenerator struct {
	exec *executor.Executor
	cc   string
}

// NewCCStubGenerator resolves the compiler on PATH. A missing compiler is
// returned as executor.ErrToolNotFound.
func NewCCStubGenerator(ex *executor.Executor, cc string) (*CCStubGenerator, error) {
	if cc == "" {
		cc = "cc"
	}
	path, err := executor.LookPath(cc)
	if err != nil {
		return nil, err
	}
	return &CCStubGenerator{exec: ex, cc: path}, nil
}

func (g *CCStubGenerator) Generate(out, relTarget, _ string) error {
	dir, err := os.MkdirTemp("", "fileset-stub-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "stub.c")
	if err := os.WriteFile(src, []byte(StubSource(relTarget)), 0o644); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := fileset.RemoveIfExists(out); err != nil {
		return err
	}
	cmd := exec.Command(g.cc, "-fPIE", "-o", out, src, "-ldl")
	if _, err := g.exec.Output(cmd); err != nil {
		return fmt.Errorf("compile launcher %s: %w", out, err)
	}
	return nil
}

// CopyStubGenerator stands in for a launcher by copying the symlink's
// resolved target. It serves hosts without a C toolchain.
type CopyStubGenerator struct{}

func (CopyStubGenerator) Generate(out, _, resolved string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := fileset.RemoveIfExists(out); err != nil {
		return err
	}
	return fileset.CopyFile(resolved, out)
}
