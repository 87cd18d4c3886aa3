package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fileset/internal/fileset"
	"fileset/internal/pattern"
)

type selectFlags struct {
	include      []string
	exclude      []string
	forceInclude []string
}

func (f *selectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.include, "include", nil, "Glob of relpaths to include (repeatable)")
	cmd.Flags().StringArrayVar(&f.exclude, "exclude", nil, "Glob of relpaths to exclude (repeatable)")
	cmd.Flags().StringArrayVar(&f.forceInclude, "force-include", nil, "Glob included regardless of excludes (repeatable)")
}

func (f *selectFlags) predicate() (*pattern.Predicate, error) {
	return pattern.NewPredicate(f.include, f.exclude, f.forceInclude)
}

func scanAll(baseDirs []string) (*fileset.Index, error) {
	if len(baseDirs) == 0 {
		baseDirs = []string{"."}
	}
	ix := fileset.NewIndex()
	for _, dir := range baseDirs {
		if err := ix.Scan(dir); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

func newListCommand(g *globals) *cobra.Command {
	var sel selectFlags
	cmd := &cobra.Command{
		Use:   "list [basedir...]",
		Short: "Print the relpaths selected from the base directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := sel.predicate()
			if err != nil {
				return err
			}
			ix, err := scanAll(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range ix.Matches(pred) {
				fmt.Fprintln(out, e.RelPath)
			}
			return nil
		},
	}
	sel.register(cmd)
	return cmd
}

func newCopyCommand(g *globals) *cobra.Command {
	var (
		sel          selectFlags
		alwaysCopy   bool
		removeDest   bool
		noRemoveDest bool
	)
	cmd := &cobra.Command{
		Use:   "copy DEST [basedir...]",
		Short: "Materialize the selected relpaths into DEST",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := sel.predicate()
			if err != nil {
				return err
			}
			ix, err := scanAll(args[1:])
			if err != nil {
				return err
			}
			return ix.CopyTo(pred, fileset.CopyOptions{
				DestDir:    args[0],
				RemoveDest: removeDest && !noRemoveDest,
				AlwaysCopy: alwaysCopy,
				Logger:     g.logger(),
			})
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&alwaysCopy, "always-copy", false, "Copy file contents instead of hard linking")
	cmd.Flags().BoolVar(&removeDest, "remove-dest", true, "Remove DEST before copying")
	cmd.Flags().BoolVar(&noRemoveDest, "no-remove-dest", false, "Keep existing DEST contents")
	return cmd
}
