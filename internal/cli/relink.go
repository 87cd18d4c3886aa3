package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"fileset/internal/console"
	"fileset/internal/executor"
	"fileset/internal/relink"
)

func newDistSplitCommand(g *globals) *cobra.Command {
	var (
		artifactDir, destDir string
		planFile, prefix     string
		sonameReader         string
		copyStubs            bool
		opts                 relink.Options
	)
	cmd := &cobra.Command{
		Use:   "dist-split",
		Short: "Split an artifacts directory into core, libraries and devel packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := relink.DefaultPlan()
			if planFile != "" {
				var err error
				if plan, err = relink.LoadPlan(planFile); err != nil {
					return err
				}
			}
			if prefix != "" {
				plan.Prefix = prefix
			}

			ex := g.executor(cmd)
			if sonameReader == "" {
				sonameReader = g.cfg.SonameReader()
			}
			soname, err := relink.NewSonameReader(sonameReader, ex, g.cfg.Patchelf())
			if err != nil {
				return err
			}
			stubs, err := stubGenerator(g, ex, copyStubs)
			if err != nil {
				return err
			}

			eng := &relink.Engine{Plan: plan, Soname: soname, Stubs: stubs, Logger: g.logger()}
			res, err := eng.Run(artifactDir, destDir, opts)
			if err != nil {
				return err
			}
			for _, p := range res.Packages {
				console.Step("%s: %d files in %s", p.Kind+suffix(p.Family), p.Files, p.Dir)
			}
			if res.DevelTarball != "" {
				console.Step("devel tarball: %s", res.DevelTarball)
			}
			console.Info("Target families: %v (default %s)", res.TargetFamilies, res.DefaultTargetFamily)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&artifactDir, "artifact-dir", "", "Directory of flattened artifact directories")
	f.StringVar(&destDir, "dest-dir", "", "Directory to create package trees in")
	f.StringVar(&opts.VersionSuffix, "version-suffix", "", "Suffix appended to package module names")
	f.StringVar(&prefix, "prefix", "", "Package name prefix (default from plan)")
	f.StringVar(&opts.TargetOS, "target-os", "", "Platform OS tag (default host)")
	f.StringVar(&opts.TargetArch, "target-arch", "", "Platform machine tag (default host)")
	f.StringVar(&planFile, "plan", "", "YAML package plan overriding the built-in split")
	f.StringVar(&sonameReader, "soname-reader", "", "SONAME reader: patchelf or elf")
	f.StringVar(&opts.DevelTarball, "devel-tarball", "none", "Compress the devel package: none, xz, zstd or gz")
	f.BoolVar(&copyStubs, "copy-stubs", false, "Copy executable targets instead of compiling launchers")
	_ = cmd.MarkFlagRequired("artifact-dir")
	_ = cmd.MarkFlagRequired("dest-dir")
	return cmd
}

func suffix(family string) string {
	if family == "" {
		return ""
	}
	return "-" + family
}

// stubGenerator compiles launchers unless copy stubs were requested. A
// missing compiler is an error.
func stubGenerator(g *globals, ex *executor.Executor, copyStubs bool) (relink.StubGenerator, error) {
	if copyStubs {
		return relink.CopyStubGenerator{}, nil
	}
	gen, err := relink.NewCCStubGenerator(ex, g.cfg.CC())
	if err != nil {
		return nil, fmt.Errorf("launcher stubs: %w (pass --copy-stubs to copy executables instead)", err)
	}
	return gen, nil
}

func newStubCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stub OUT RELATIVE_TARGET",
		Short: "Compile one launcher that execs RELATIVE_TARGET next to OUT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := relink.NewCCStubGenerator(g.executor(cmd), g.cfg.CC())
			if err != nil {
				return err
			}
			out := args[0]
			resolved := filepath.Join(filepath.Dir(out), args[1])
			return gen.Generate(out, args[1], resolved)
		},
	}
}
