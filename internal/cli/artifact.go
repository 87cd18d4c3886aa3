package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fileset/internal/artifact"
	"fileset/internal/console"
)

func newArtifactCommand(g *globals) *cobra.Command {
	var descriptor, component, rootDir, outputDir string
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Build one component artifact directory from a descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := artifact.LoadDescriptor(descriptor)
			if err != nil {
				return err
			}
			b := &artifact.Builder{
				Root:       rootDir,
				Descriptor: desc,
				Defaults:   artifact.NewDefaults(),
				Logger:     g.logger(),
			}
			m, err := b.Build(component, outputDir)
			if err != nil {
				return err
			}
			console.Step("Built %s artifact %s (%d subtrees)", component, outputDir, len(m.Subtrees))
			return nil
		},
	}
	cmd.Flags().StringVar(&descriptor, "descriptor", "", "Artifact descriptor (.toml, .yaml or .json)")
	cmd.Flags().StringVar(&component, "component", "", "Component to build (lib, run, dev, dbg, doc, test)")
	cmd.Flags().StringVar(&rootDir, "root-dir", ".", "Directory subtree paths are relative to")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Artifact directory to create")
	for _, f := range []string{"descriptor", "component", "output-dir"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newArchiveCommand(g *globals) *cobra.Command {
	var output, hashFile, hashAlgorithm string
	var list bool
	cmd := &cobra.Command{
		Use:   "artifact-archive ARTIFACT...",
		Short: "Pack artifact directories into a manifest-first .tar.xz",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, path := range args {
					names, err := artifact.ListArchive(path)
					if err != nil {
						return err
					}
					for _, n := range names {
						fmt.Fprintln(cmd.OutOrStdout(), n)
					}
				}
				return nil
			}
			if output == "" {
				return fmt.Errorf("-o/--output is required")
			}
			if hashAlgorithm == "" {
				hashAlgorithm = g.cfg.HashAlgorithm()
			}
			if err := artifact.Pack(output, args, artifact.PackOptions{
				HashFile:      hashFile,
				HashAlgorithm: hashAlgorithm,
				Logger:        g.logger(),
			}); err != nil {
				return err
			}
			console.Step("Wrote %s", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive to write")
	cmd.Flags().StringVar(&hashFile, "hash-file", "", "Write the archive digest to this file")
	cmd.Flags().StringVar(&hashAlgorithm, "hash-algorithm", "", "Digest algorithm (sha256, sha512, blake3)")
	cmd.Flags().BoolVar(&list, "list", false, "List the members of existing archives instead")
	return cmd
}

func newFlattenCommand(g *globals) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "artifact-flatten INPUT...",
		Short: "Merge artifact directories or archives into one tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return artifact.Flatten(output, args, artifact.FlattenOptions{Logger: g.logger()})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory to flatten into")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (g *globals) remoteStore(cmd *cobra.Command) (*artifact.RemoteStore, error) {
	return artifact.NewRemoteStore(cmd.Context(), g.cfg.S3(), g.cfg.HashAlgorithm())
}

func newPushCommand(g *globals) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "artifact-push ARCHIVE",
		Short: "Upload an archive and its digest to the remote store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.remoteStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Push(cmd.Context(), args[0], key); err != nil {
				return err
			}
			console.Step("Pushed %s to s3://%s/%s", args[0], store.Bucket, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Object key")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newFetchCommand(g *globals) *cobra.Command {
	var output string
	var list bool
	cmd := &cobra.Command{
		Use:   "artifact-fetch KEY",
		Short: "Download an archive from the remote store and verify its digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.remoteStore(cmd)
			if err != nil {
				return err
			}
			if list {
				keys, err := store.List(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			}
			if output == "" {
				return fmt.Errorf("-o/--output is required")
			}
			return store.Fetch(cmd.Context(), args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write")
	cmd.Flags().BoolVar(&list, "list", false, "Treat KEY as a prefix and list matching archives")
	return cmd
}
