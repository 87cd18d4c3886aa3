package relink

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeELF writes a minimal little-endian ELF64 header of type typ. With
// interp set, a PT_INTERP program header is added, which is how a PIE
// without DF_1_PIE looks.
func writeELF(t *testing.T, path string, typ elf.Type, interp bool) {
	t.Helper()
	hdr := elf.Header64{
		Type:      uint16(typ),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Ehsize:    64,
		Phentsize: 56,
		Shentsize: 64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	if interp {
		hdr.Phoff = 64
		hdr.Phnum = 1
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	if interp {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, elf.Prog64{Type: uint32(elf.PT_INTERP)}))
	}
	// Distinguish copies of otherwise identical headers.
	buf.WriteString(path)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o755))
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func symlink(t *testing.T, target, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.Symlink(target, path))
}

// fakeSoname maps the base name of a resolved library to its SONAME.
type fakeSoname map[string]string

func (f fakeSoname) Soname(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return f[filepath.Base(resolved)], nil
}

// fakeStubs writes a marker file instead of compiling.
type fakeStubs struct {
	calls map[string]string
}

func (f *fakeStubs) Generate(out, relTarget, _ string) error {
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[out] = relTarget
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("stub -> "+relTarget), 0o755)
}
