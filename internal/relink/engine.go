package relink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"fileset/internal/artifact"
	"fileset/internal/console"
	"fileset/internal/fileset"
	"fileset/internal/pattern"
)

// Options parameterize one Engine.Run.
type Options struct {
	VersionSuffix string
	TargetOS      string // default runtime.GOOS
	TargetArch    string // default machine name of runtime.GOARCH
	DevelTarball  string // none, xz, zstd or gz
}

// Package describes one populated package tree.
type Package struct {
	Kind      string // core, libraries or devel
	Family    string // set for libraries packages
	Dir       string
	Artifacts []artifact.Name
	Files     int // relpaths this package physically owns
}

// Result summarizes a run.
type Result struct {
	Packages            []Package
	TargetFamilies      []string
	DefaultTargetFamily string
	DevelTarball        string
	Ledger              *Ledger
}

// Engine splits an artifacts directory into package trees.
type Engine struct {
	Plan   *Plan
	Soname SonameReader
	Stubs  StubGenerator
	Logger console.Logger
}

// Run populates the core package, one libraries package per target family
// in sorted order, then the devel package. All share one Ledger, so the
// order is significant.
func (e *Engine) Run(artifactDir, destDir string, opts Options) (*Result, error) {
	if e.Soname == nil || e.Stubs == nil {
		return nil, errors.New("relink engine needs a soname reader and a stub generator")
	}
	plan := e.Plan
	if plan == nil {
		plan = DefaultPlan()
	}

	all, err := artifact.OpenCatalog(artifactDir, nil)
	if err != nil {
		return nil, err
	}
	families := all.TargetFamilies()
	if len(families) == 0 {
		return nil, fmt.Errorf("no target artifacts found in %s", artifactDir)
	}
	res := &Result{
		TargetFamilies:      families,
		DefaultTargetFamily: families[0],
		Ledger:              NewLedger(),
	}

	core, err := e.populateLib(artifactDir, destDir, "core", "", plan.Core, plan, opts, res.Ledger)
	if err != nil {
		return nil, err
	}
	res.Packages = append(res.Packages, *core)

	for _, family := range families {
		libs, err := e.populateLib(artifactDir, destDir, "libraries", family, plan.Libraries, plan, opts, res.Ledger)
		if err != nil {
			return nil, err
		}
		res.Packages = append(res.Packages, *libs)
	}

	devel, err := e.populateDevel(all, destDir, plan, opts, res.Ledger)
	if err != nil {
		return nil, err
	}
	res.Packages = append(res.Packages, *devel)

	ext, err := TarballExt(opts.DevelTarball)
	if err != nil {
		return nil, err
	}
	if ext != "" {
		tarball := filepath.Join(filepath.Dir(devel.Dir), "_devel"+ext)
		e.log().Printf("::: Building devel tarball %s\n", tarball)
		if err := WriteTarball(devel.Dir, tarball, opts.DevelTarball); err != nil {
			return nil, fmt.Errorf("devel tarball: %w", err)
		}
		if err := os.RemoveAll(devel.Dir); err != nil {
			return nil, err
		}
		res.DevelTarball = tarball
	}
	return res, nil
}

// PackageDir returns destDir/{prefix}-{kind}[-{family}]/platform/
// _{prefix_}_{kind}[_{family}]_{os}_{arch}{suffix}.
func PackageDir(destDir, prefix, kind, family string, opts Options) string {
	name := prefix + "-" + kind
	module := strings.ReplaceAll(prefix, "-", "_") + "_" + kind
	if family != "" {
		name += "-" + family
		module += "_" + family
	}
	module = "_" + module + "_" + osArch(opts) + opts.VersionSuffix
	return filepath.Join(destDir, name, "platform", module)
}

func osArch(opts Options) string {
	goos, arch := opts.TargetOS, opts.TargetArch
	if goos == "" {
		goos = runtime.GOOS
	}
	if arch == "" {
		switch runtime.GOARCH {
		case "amd64":
			arch = "x86_64"
		case "arm64":
			arch = "aarch64"
		default:
			arch = runtime.GOARCH
		}
	}
	return goos + "_" + arch
}

func (e *Engine) log() console.Logger {
	if e.Logger == nil {
		return console.Discard
	}
	return e.Logger
}

// resetPackage clears the package root and creates the platform directory.
func resetPackage(dir string) error {
	root := filepath.Dir(filepath.Dir(dir))
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("clean %s: %w", root, err)
	}
	return os.MkdirAll(dir, 0o755)
}

func (e *Engine) populateLib(artifactDir, destDir, kind, family string, rule PackageRule, plan *Plan, opts Options, ledger *Ledger) (*Package, error) {
	cat, err := artifact.OpenCatalog(artifactDir, func(n artifact.Name) bool {
		if family != "" && n.TargetFamily != family {
			return false
		}
		return rule.Accepts(n)
	})
	if err != nil {
		return nil, err
	}
	pred, err := pattern.NewPredicate(rule.Include, rule.Exclude, nil)
	if err != nil {
		return nil, err
	}

	pkg := &Package{Kind: kind, Family: family, Dir: PackageDir(destDir, plan.Prefix, kind, family, opts), Artifacts: cat.Artifacts}
	e.log().Printf("::: Populating %s package %s\n", kind, pkg.Dir)
	for _, n := range cat.Artifacts {
		e.log().Printf("  + %s\n", n)
	}
	if err := resetPackage(pkg.Dir); err != nil {
		return nil, err
	}

	entries := cat.Index.Matches(pred)
	bar := console.NewProgress(int64(len(entries)), kind+" "+family)
	defer bar.Finish()
	before := ledger.Len()
	for _, ent := range entries {
		bar.Add(1)
		if _, owned := ledger.Owner(ent.RelPath); owned {
			continue
		}
		dest := filepath.Join(pkg.Dir, filepath.FromSlash(ent.RelPath))
		if err := e.materializeLib(ent, dest, ledger); err != nil {
			return nil, fmt.Errorf("%s package: %s: %w", kind, ent.RelPath, err)
		}
	}
	pkg.Files = ledger.Len() - before
	return pkg, nil
}

func (e *Engine) materializeLib(ent *fileset.Entry, dest string, ledger *Ledger) error {
	typ, err := Classify(ent.AbsPath)
	if err != nil {
		return err
	}
	switch typ {
	case TypeDir:
		return os.MkdirAll(dest, 0o755)
	case TypeSymlink:
		return e.materializeLibSymlink(ent, dest, ledger)
	case TypeSharedLib:
		soname, err := e.Soname.Soname(ent.AbsPath)
		if err != nil {
			return err
		}
		if soname != filepath.Base(dest) {
			e.log().Printf("  DROP: %s (soname %s)\n", ent.RelPath, soname)
			return nil
		}
	}
	return e.copyClaim(ent.RelPath, ent.AbsPath, dest, ledger)
}

// materializeLibSymlink handles a symlink by what it resolves to: dangling
// and directory links are dropped, shared libraries are kept only under
// their SONAME (rotating the link farm), executables become launcher stubs
// and anything else is copied.
func (e *Engine) materializeLibSymlink(ent *fileset.Entry, dest string, ledger *Ledger) error {
	resolved, err := filepath.EvalSymlinks(ent.AbsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.log().Printf("  DROP: %s (dangling)\n", ent.RelPath)
			return nil
		}
		return err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	typ, err := Classify(resolved)
	if err != nil {
		return err
	}
	switch typ {
	case TypeSharedLib:
		soname, err := e.Soname.Soname(ent.AbsPath)
		if err != nil {
			return err
		}
		if soname != ent.Name() {
			return nil
		}
		target, err := os.Readlink(ent.AbsPath)
		if err != nil {
			return err
		}
		// libfoo.so.1 -> libfoo.so.1.2: the real file is now owned by the
		// SONAME copy, so devel links it there.
		if !strings.Contains(target, "/") {
			ledger.Claim(path.Join(path.Dir(ent.RelPath), target), dest)
		}
		return e.copyClaim(ent.RelPath, resolved, dest, ledger)

	case TypeExecutable:
		target, err := os.Readlink(ent.AbsPath)
		if err != nil {
			return err
		}
		e.log().Printf("  STUB: %s -> %s\n", ent.RelPath, target)
		if err := e.Stubs.Generate(dest, target, resolved); err != nil {
			return err
		}
		ledger.Claim(ent.RelPath, dest)
		return nil
	}
	return e.copyClaim(ent.RelPath, resolved, dest, ledger)
}

// copyClaim always copies; package files are patched later, so hard links
// back into the artifacts would be unsafe.
func (e *Engine) copyClaim(rel, src, dest string, ledger *Ledger) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := fileset.RemoveIfExists(dest); err != nil {
		return err
	}
	e.log().Printf("  MATERIALIZE: %s (from %s)\n", rel, src)
	if err := fileset.CopyFile(src, dest); err != nil {
		return err
	}
	ledger.Claim(rel, dest)
	return nil
}

func (e *Engine) populateDevel(all *artifact.Catalog, destDir string, plan *Plan, opts Options, ledger *Ledger) (*Package, error) {
	pkg := &Package{Kind: "devel", Dir: PackageDir(destDir, plan.Prefix, "devel", "", opts), Artifacts: all.Artifacts}
	e.log().Printf("::: Populating devel package %s\n", pkg.Dir)
	if err := resetPackage(pkg.Dir); err != nil {
		return nil, err
	}

	entries := all.Index.Entries()
	bar := console.NewProgress(int64(len(entries)), "devel")
	defer bar.Finish()
	for _, ent := range entries {
		bar.Add(1)
		dest := filepath.Join(pkg.Dir, filepath.FromSlash(ent.RelPath))
		copied, err := e.materializeDevel(ent, dest, ledger)
		if err != nil {
			return nil, fmt.Errorf("devel package: %s: %w", ent.RelPath, err)
		}
		if copied {
			pkg.Files++
		}
	}
	return pkg, nil
}

// materializeDevel links owned relpaths back to their owner, transcribes
// unowned symlinks and copies everything else. It reports whether bytes were
// copied.
func (e *Engine) materializeDevel(ent *fileset.Entry, dest string, ledger *Ledger) (bool, error) {
	if ent.Kind == fileset.KindDir {
		return false, os.MkdirAll(dest, 0o755)
	}
	if owner, ok := ledger.Owner(ent.RelPath); ok {
		target, err := filepath.Rel(filepath.Dir(dest), owner)
		if err != nil {
			return false, err
		}
		e.log().Printf("  LINK: %s -> %s\n", ent.RelPath, target)
		return false, fileset.ReplaceSymlink(target, dest)
	}
	if ent.Kind == fileset.KindSymlink {
		target, err := os.Readlink(ent.AbsPath)
		if err != nil {
			return false, err
		}
		e.log().Printf("  LINK: %s (to %s)\n", ent.RelPath, target)
		return false, fileset.ReplaceSymlink(target, dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}
	if err := fileset.RemoveIfExists(dest); err != nil {
		return false, err
	}
	e.log().Printf("  MATERIALIZE: %s (from %s)\n", ent.RelPath, ent.AbsPath)
	return true, fileset.CopyFile(ent.AbsPath, dest)
}
