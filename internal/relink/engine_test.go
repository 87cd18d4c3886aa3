package relink

import (
	"archive/tar"
	"debug/elf"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"fileset/internal/artifact"
)

var testOpts = Options{TargetOS: "linux", TargetArch: "x86_64"}

// addArtifact creates artifacts/{name}/{subtree} with a manifest and lets
// fill populate the subtree.
func addArtifact(t *testing.T, artifacts, name, subtree string, fill func(stage string)) {
	t.Helper()
	dir := filepath.Join(artifacts, name)
	stage := filepath.Join(dir, filepath.FromSlash(subtree))
	require.NoError(t, os.MkdirAll(stage, 0o755))
	fill(stage)
	require.NoError(t, (&artifact.Manifest{Subtrees: []string{subtree}}).Write(dir))
}

func buildArtifacts(t *testing.T) string {
	t.Helper()
	artifacts := t.TempDir()
	addArtifact(t, artifacts, "core-runtime_lib_generic", "core/stage", func(stage string) {
		writeELF(t, filepath.Join(stage, "lib", "libhsa.so.1.2"), elf.ET_DYN, false)
		symlink(t, "libhsa.so.1.2", filepath.Join(stage, "lib", "libhsa.so.1"))
		symlink(t, "libhsa.so.1", filepath.Join(stage, "lib", "libhsa.so"))
		writeELF(t, filepath.Join(stage, "lib", "libhsa-plugin.so"), elf.ET_DYN, false)
		writeFile(t, filepath.Join(stage, "lib", "cmake", "hsa", "hsa-config.cmake"), "cmake", 0o644)
		symlink(t, "missing", filepath.Join(stage, "lib", "dangling"))
		writeFile(t, filepath.Join(stage, "share", "data.txt"), "data", 0o644)
		symlink(t, "../share", filepath.Join(stage, "lib", "share-link"))
	})
	addArtifact(t, artifacts, "amd-llvm_run_generic", "llvm/stage", func(stage string) {
		writeELF(t, filepath.Join(stage, "bin", "clang"), elf.ET_EXEC, false)
		symlink(t, "clang", filepath.Join(stage, "bin", "amdclang"))
		writeFile(t, filepath.Join(stage, "bin", "hipconfig.sh"), "#!/bin/sh\n", 0o755)
		symlink(t, "hipconfig.sh", filepath.Join(stage, "bin", "hipconfig"))
	})
	addArtifact(t, artifacts, "blas_lib_gfx110X", "blas/stage", func(stage string) {
		writeELF(t, filepath.Join(stage, "lib", "libblas.so.4"), elf.ET_DYN, false)
	})
	addArtifact(t, artifacts, "blas_lib_gfx94X", "blas/stage", func(stage string) {
		writeELF(t, filepath.Join(stage, "lib", "libblas.so.4"), elf.ET_DYN, false)
	})
	addArtifact(t, artifacts, "blas_dev_gfx110X", "blas/stage", func(stage string) {
		writeFile(t, filepath.Join(stage, "include", "blas.h"), "// blas", 0o644)
	})
	return artifacts
}

var testSonames = fakeSoname{
	"libhsa.so.1.2":    "libhsa.so.1",
	"libhsa-plugin.so": "libhsa-plugin.so.0",
	"libblas.so.4":     "libblas.so.4",
}

func lstatKind(t *testing.T, path string) string {
	t.Helper()
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "absent"
	}
	require.NoError(t, err)
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return "symlink"
	case info.IsDir():
		return "dir"
	default:
		return "file"
	}
}

func sameFile(t *testing.T, a, b string) bool {
	t.Helper()
	ia, err := os.Stat(a)
	require.NoError(t, err)
	ib, err := os.Stat(b)
	require.NoError(t, err)
	return os.SameFile(ia, ib)
}

func TestPackageDir(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/out", "rocm-sdk-libraries-gfx110X", "platform", "_rocm_sdk_libraries_gfx110X_linux_x86_64.dev1"),
		PackageDir("/out", "rocm-sdk", "libraries", "gfx110X", Options{TargetOS: "linux", TargetArch: "x86_64", VersionSuffix: ".dev1"}))
	assert.Equal(t,
		filepath.Join("/out", "rocm-sdk-core", "platform", "_rocm_sdk_core_windows_AMD64"),
		PackageDir("/out", "rocm-sdk", "core", "", Options{TargetOS: "windows", TargetArch: "AMD64"}))
}

func TestEngineRun(t *testing.T) {
	artifacts := buildArtifacts(t)
	dest := t.TempDir()
	stubs := &fakeStubs{}
	eng := &Engine{Soname: testSonames, Stubs: stubs}

	res, err := eng.Run(artifacts, dest, testOpts)
	require.NoError(t, err)

	assert.Equal(t, []string{"gfx110X", "gfx94X"}, res.TargetFamilies)
	assert.Equal(t, "gfx110X", res.DefaultTargetFamily)
	require.Len(t, res.Packages, 4)
	kinds := []string{}
	for _, p := range res.Packages {
		kinds = append(kinds, p.Kind+":"+p.Family)
	}
	assert.Equal(t, []string{"core:", "libraries:gfx110X", "libraries:gfx94X", "devel:"}, kinds)

	core := PackageDir(dest, "rocm-sdk", "core", "", testOpts)
	libs110 := PackageDir(dest, "rocm-sdk", "libraries", "gfx110X", testOpts)
	libs94 := PackageDir(dest, "rocm-sdk", "libraries", "gfx94X", testOpts)
	devel := PackageDir(dest, "rocm-sdk", "devel", "", testOpts)

	t.Run("core", func(t *testing.T) {
		assert.Equal(t, "file", lstatKind(t, filepath.Join(core, "lib", "libhsa.so.1")), "SONAME name becomes the real file")
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(core, "lib", "libhsa.so.1.2")))
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(core, "lib", "libhsa.so")))
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(core, "lib", "libhsa-plugin.so")), "name differs from SONAME")
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(core, "lib", "cmake")))
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(core, "lib", "dangling")))
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(core, "lib", "share-link")))
		assert.Equal(t, "file", lstatKind(t, filepath.Join(core, "share", "data.txt")))
		assert.Equal(t, "file", lstatKind(t, filepath.Join(core, "bin", "clang")))
		assert.Equal(t, "file", lstatKind(t, filepath.Join(core, "bin", "hipconfig")), "script symlinks are copied")

		stub := filepath.Join(core, "bin", "amdclang")
		assert.Equal(t, "clang", stubs.calls[stub])
		assert.Equal(t, "file", lstatKind(t, stub))

		owner, ok := res.Ledger.Owner("lib/libhsa.so.1.2")
		require.True(t, ok, "rotated link target is owned by the SONAME copy")
		assert.Equal(t, filepath.Join(core, "lib", "libhsa.so.1"), owner)
	})

	t.Run("libraries", func(t *testing.T) {
		assert.Equal(t, "file", lstatKind(t, filepath.Join(libs110, "lib", "libblas.so.4")))
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(libs94, "lib", "libblas.so.4")), "first family owns the relpath")
		assert.Equal(t, "absent", lstatKind(t, filepath.Join(libs110, "include")), "dev artifacts are not library inputs")
	})

	t.Run("devel", func(t *testing.T) {
		for _, rel := range []string{"lib/libhsa.so.1", "lib/libhsa.so.1.2", "bin/amdclang", "bin/clang", "lib/libblas.so.4"} {
			p := filepath.Join(devel, filepath.FromSlash(rel))
			require.Equal(t, "symlink", lstatKind(t, p), rel)
			target, err := os.Readlink(p)
			require.NoError(t, err)
			assert.False(t, filepath.IsAbs(target), "%s links relatively", rel)
		}
		assert.True(t, sameFile(t, filepath.Join(devel, "lib", "libhsa.so.1.2"), filepath.Join(core, "lib", "libhsa.so.1")))
		assert.True(t, sameFile(t, filepath.Join(devel, "lib", "libblas.so.4"), filepath.Join(libs110, "lib", "libblas.so.4")))

		target, err := os.Readlink(filepath.Join(devel, "lib", "libhsa.so"))
		require.NoError(t, err)
		assert.Equal(t, "libhsa.so.1", target, "unowned symlinks are transcribed")
		target, err = os.Readlink(filepath.Join(devel, "lib", "dangling"))
		require.NoError(t, err)
		assert.Equal(t, "missing", target)

		assert.Equal(t, "file", lstatKind(t, filepath.Join(devel, "lib", "cmake", "hsa", "hsa-config.cmake")))
		assert.Equal(t, "file", lstatKind(t, filepath.Join(devel, "include", "blas.h")))
		assert.Equal(t, "file", lstatKind(t, filepath.Join(devel, "lib", "libhsa-plugin.so")))
	})
}

// A relpath eligible for core and devel ends up as one real file and one
// link to it.
func TestWaterfallDedup(t *testing.T) {
	artifacts := buildArtifacts(t)
	dest := t.TempDir()
	_, err := (&Engine{Soname: testSonames, Stubs: &fakeStubs{}}).Run(artifacts, dest, testOpts)
	require.NoError(t, err)

	core := filepath.Join(PackageDir(dest, "rocm-sdk", "core", "", testOpts), "share", "data.txt")
	devel := filepath.Join(PackageDir(dest, "rocm-sdk", "devel", "", testOpts), "share", "data.txt")
	assert.Equal(t, "file", lstatKind(t, core))
	assert.Equal(t, "symlink", lstatKind(t, devel))
	assert.True(t, sameFile(t, core, devel))
}

func TestEngineDevelTarball(t *testing.T) {
	artifacts := buildArtifacts(t)
	dest := t.TempDir()
	res, err := (&Engine{Soname: testSonames, Stubs: &fakeStubs{}}).Run(artifacts, dest, Options{TargetOS: "linux", TargetArch: "x86_64", DevelTarball: "xz"})
	require.NoError(t, err)

	devel := PackageDir(dest, "rocm-sdk", "devel", "", testOpts)
	assert.NoDirExists(t, devel)
	assert.Equal(t, filepath.Join(filepath.Dir(devel), "_devel.tar.xz"), res.DevelTarball)

	f, err := os.Open(res.DevelTarball)
	require.NoError(t, err)
	defer f.Close()
	xr, err := xz.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(xr)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	require.NotEmpty(t, names)
	for _, n := range names {
		assert.True(t, strings.HasPrefix(n, "_rocm_sdk_devel_linux_x86_64/"), n)
	}
	assert.Contains(t, names, "_rocm_sdk_devel_linux_x86_64/include/blas.h")
}

func TestEngineRequiresTargetFamilies(t *testing.T) {
	artifacts := t.TempDir()
	addArtifact(t, artifacts, "base_lib_generic", "base/stage", func(stage string) {
		writeFile(t, filepath.Join(stage, "share", "x.txt"), "x", 0o644)
	})
	_, err := (&Engine{Soname: testSonames, Stubs: &fakeStubs{}}).Run(artifacts, t.TempDir(), testOpts)
	assert.ErrorContains(t, err, "no target artifacts")
}

func TestEngineRequiresTools(t *testing.T) {
	_, err := (&Engine{}).Run(t.TempDir(), t.TempDir(), testOpts)
	assert.Error(t, err)
}
