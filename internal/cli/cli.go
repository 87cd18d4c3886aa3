// Package cli wires the fileset commands into a cobra command tree.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fileset/internal/config"
	"fileset/internal/console"
	"fileset/internal/executor"
)

// globals holds the persistent flags and what PersistentPreRunE derives
// from them.
type globals struct {
	verbose    bool
	debug      bool
	configFile string

	cfg *config.Config
}

func (g *globals) logger() console.Logger { return console.VerboseLogger() }

func (g *globals) executor(cmd *cobra.Command) *executor.Executor {
	return executor.New(cmd.Context())
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "fileset",
		Short:         "Select, package and split build artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configFile)
			if err != nil {
				return err
			}
			g.cfg = cfg
			console.Debug = g.debug || cfg.Bool("FILESET_DEBUG")
			console.Verbose = g.verbose || cfg.Bool("FILESET_VERBOSE")
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log every file operation")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Log external commands and disable progress bars")
	root.PersistentFlags().StringVar(&g.configFile, "config", config.DefaultFile, "KEY=VALUE configuration file")

	root.AddCommand(
		newListCommand(g),
		newCopyCommand(g),
		newArtifactCommand(g),
		newArchiveCommand(g),
		newFlattenCommand(g),
		newPushCommand(g),
		newFetchCommand(g),
		newDistSplitCommand(g),
		newStubCommand(g),
	)
	return root
}

// Main runs the command line and exits. The first SIGINT or SIGTERM cancels
// the running command; a second one exits immediately.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			console.Warn("Received %v, cancelling...", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			console.Error("Second interrupt received, exiting now.")
			os.Exit(130)
		case <-time.After(5 * time.Second):
		}
	}()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		console.Error("fileset: %v", err)
		os.Exit(1)
	}
}
