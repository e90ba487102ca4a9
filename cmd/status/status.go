package status

import (
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/driftlock/driftlock/cmd/util"
	"github.com/driftlock/driftlock/pkg/config"
	"github.com/driftlock/driftlock/pkg/errors"
	"github.com/driftlock/driftlock/pkg/lockstate"
	"github.com/driftlock/driftlock/pkg/phase"
)

// report is the operator-facing view of the engine's persistent state.
type report struct {
	LockDir         string `json:"lockDir"`
	DryRunDone      bool   `json:"dryRunDone"`
	FirstRunDone    bool   `json:"firstRunDone"`
	BisyncRecord    bool   `json:"bisyncRecord"`
	ScheduledPhase  string `json:"scheduledPhase"`
	BaselineCreated string `json:"baselineCreated,omitempty"`
	BaselineSource  string `json:"baselineSource,omitempty"`
	BaselineDest    string `json:"baselineDest,omitempty"`
}

// New creates a new `status` command.
func New() *cobra.Command {
	var configPath, output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show lock state and the phase a scheduled sync would run",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(configPath, output); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath,
		"Path to the KEY=value engine configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", "text",
		"Output format: text or yaml")
	return cmd
}

func run(configPath, output string) error {
	if output != "text" && output != "yaml" {
		return errors.NewFriendlyError(
			"unknown output format %q: must be text or yaml", output)
	}

	cfg, err := config.Resolve(configPath, os.Getenv)
	if err != nil {
		return errors.WithContext(err, "resolve configuration")
	}

	locks := lockstate.New(cfg.LockDir, lockstate.Names{
		InitialDryLock: cfg.InitialDryLock,
		InitialLock:    cfg.InitialLock,
		BisyncLock:     cfg.BisyncLock,
	})

	snap, err := locks.Read()
	if err != nil {
		return errors.WithContext(err, "read lock state")
	}

	r := report{
		LockDir:      cfg.LockDir,
		DryRunDone:   snap.DryRunDone,
		FirstRunDone: snap.FirstRunDone,
		BisyncRecord: snap.BisyncRecordPresent,
	}

	// What would happen if the scheduler fired right now, without
	// --first-run.
	if scheduled, err := phase.Resolve(false, snap); err != nil {
		r.ScheduledPhase = "blocked: " + errors.GetPrintableMessage(err)
	} else {
		r.ScheduledPhase = scheduled.String()
	}

	if snap.BisyncRecordPresent {
		record, err := locks.ReadRecord()
		if err != nil {
			return errors.WithContext(err, "read bisync record")
		}
		r.BaselineCreated = record.CreatedAt.Format(time.RFC3339)
		r.BaselineSource = record.SourcePath
		r.BaselineDest = record.DestPath
	}

	if output == "yaml" {
		out, err := yaml.Marshal(r)
		if err != nil {
			return errors.WithContext(err, "marshal report")
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("lock dir:        %s\n", r.LockDir)
	fmt.Printf("dry run done:    %t\n", r.DryRunDone)
	fmt.Printf("first run done:  %t\n", r.FirstRunDone)
	fmt.Printf("bisync record:   %t\n", r.BisyncRecord)
	fmt.Printf("scheduled phase: %s\n", r.ScheduledPhase)
	if r.BaselineCreated != "" {
		fmt.Printf("baseline:        %s -> %s (created %s)\n",
			r.BaselineSource, r.BaselineDest, r.BaselineCreated)
	}
	return nil
}
