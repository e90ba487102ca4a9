package sync

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/driftlock/driftlock/cmd/util"
	"github.com/driftlock/driftlock/pkg/config"
	"github.com/driftlock/driftlock/pkg/errors"
	"github.com/driftlock/driftlock/pkg/orchestrator"
)

// New creates a new `sync` command, the entry point invoked by the
// periodic scheduler.
func New() *cobra.Command {
	var firstRun, dryRun, safe, force bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one gated bisync invocation",
		Long: "Run one bisync invocation against the remote target.\n" +
			"The first two invocations with --first-run form the setup\n" +
			"ritual: a forced dry run to review, then the real initial\n" +
			"sync. Scheduled invocations after that need no flags.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(configPath, orchestrator.Options{
				FirstRun: firstRun,
				DryRun:   dryRun || safe,
				Force:    force,
			}); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&firstRun, "first-run", false,
		"Advance the first-run protocol (dry run, then initial sync)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Show what would change without moving any data")
	cmd.Flags().BoolVar(&safe, "safe", false,
		"Alias for --dry-run")
	cmd.Flags().BoolVar(&force, "force", false,
		"Pass --force to the sync tool (ignored during dry runs)")
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath,
		"Path to the KEY=value engine configuration file")
	return cmd
}

func run(configPath string, opts orchestrator.Options) error {
	cfg, err := config.Resolve(configPath, os.Getenv)
	if err != nil {
		return errors.WithContext(err, "resolve configuration")
	}
	return orchestrator.New(cfg).Run(opts)
}
