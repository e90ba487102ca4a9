// Package orchestrator drives one gated sync invocation end to end:
// lock, resolve phase, rotate logs, run rclone, record progress.
package orchestrator

import (
	"fmt"
	"io"
	"os"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/driftlock/driftlock/pkg/config"
	"github.com/driftlock/driftlock/pkg/errors"
	"github.com/driftlock/driftlock/pkg/lockstate"
	"github.com/driftlock/driftlock/pkg/logrotate"
	"github.com/driftlock/driftlock/pkg/phase"
	"github.com/driftlock/driftlock/pkg/rclone"
	"github.com/driftlock/driftlock/pkg/runlock"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// clock is overridden with a fake clock in tests.
var clock = clockwork.NewRealClock()

// Seams overridden in tests: advisory locks and binary discovery both
// need a real filesystem and a real child process otherwise.
var (
	acquireRunLock = func(path string) (*runlock.RunLock, error) {
		return runlock.Acquire(path)
	}
	defaultDiscoverBinary = rclone.Discover
	defaultCheckVersion   = rclone.CheckVersion
	discoverBinary        = defaultDiscoverBinary
	checkVersion          = defaultCheckVersion
)

// Options are the operator-requested flags for one invocation.
type Options struct {
	FirstRun bool
	DryRun   bool
	Force    bool
}

// Orchestrator ties the engine's pieces together for one invocation.
type Orchestrator struct {
	cfg     config.Config
	locks   *lockstate.Store
	runner  rclone.Runner
	console io.Writer
}

// New builds an Orchestrator around the resolved configuration.
func New(cfg config.Config) *Orchestrator {
	return &Orchestrator{
		cfg: cfg,
		locks: lockstate.New(cfg.LockDir, lockstate.Names{
			InitialDryLock: cfg.InitialDryLock,
			InitialLock:    cfg.InitialLock,
			BisyncLock:     cfg.BisyncLock,
		}),
		runner:  rclone.ExecRunner{},
		console: os.Stdout,
	}
}

// Run executes one invocation. On subprocess failure all lock markers
// are left untouched so the scheduler's next firing retries the same
// phase; no retries happen here.
func (o *Orchestrator) Run(opts Options) error {
	lock, err := acquireRunLock(o.cfg.RunLockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	snap, err := o.locks.Read()
	if err != nil {
		return errors.WithContext(err, "read lock state")
	}

	resolved, err := phase.Resolve(opts.FirstRun, snap)
	if err != nil {
		return err
	}
	if opts.FirstRun && resolved == phase.Normal {
		log.Warn("First run already completed. Running a normal sync " +
			"without re-establishing the baseline.")
	}

	// A forced dry run must start from a clean slate: a stale initial
	// lock left by a partially torn-down setup would otherwise let the
	// next invocation skip straight past the human review.
	if resolved == phase.DryRunPending {
		if err := o.locks.RemoveInitialLock(); err != nil {
			return err
		}
	}

	logPath := o.logPathFor(resolved)
	if err := logrotate.RotateIfNeeded(
		logPath, o.cfg.LogMaxSize, o.cfg.LogMaxBackups); err != nil {
		// Running without rotation risks unbounded log growth under
		// the scheduler, so rotation failure aborts before rclone runs.
		return errors.WithContext(err, "rotate log")
	}

	logFile, err := o.openLog(logPath)
	if err != nil {
		return errors.WithContext(err, "open log")
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "=== %s phase=%s first-run=%t dry-run=%t\n",
		clock.Now().UTC().Format("2006-01-02T15:04:05Z"),
		resolved, opts.FirstRun, opts.DryRun)

	binary, err := discoverBinary(os.Getenv(config.BinaryOverrideKey))
	if err != nil {
		return err
	}
	if err := checkVersion(binary); err != nil {
		return err
	}

	args := rclone.Args(resolved, rclone.Options{
		DryRun: opts.DryRun,
		Force:  opts.Force,
	}, rclone.Spec{
		ConfigFile: o.cfg.RcloneConfigFile,
		FilterFile: o.cfg.FilterFile,
		Timeout:    o.cfg.RcloneTimeout,
		Paths: rclone.PathPair{
			Source: o.cfg.SourceDir,
			Target: o.cfg.RemoteTarget,
		},
	})

	log.WithFields(log.Fields{
		"phase": resolved.String(),
		"log":   logPath,
	}).Info("Starting sync")

	output := io.MultiWriter(o.console, logFile)
	if err := o.runner.Run(binary, args, output, logPath); err != nil {
		return err
	}

	return o.recordSuccess(resolved, opts.DryRun)
}

// recordSuccess advances the lock markers for the phase that just
// completed and prints phase-appropriate guidance. A dry run the
// operator requested on top of FirstRunPending previews the resync
// without establishing the baseline, so the initial lock and the
// bisync record must not be written: the double gate only opens once
// the real first-run bisync has completed.
func (o *Orchestrator) recordSuccess(resolved phase.Phase, requestedDryRun bool) error {
	switch resolved {
	case phase.DryRunPending:
		if err := o.locks.MarkDryRunComplete(); err != nil {
			return errors.WithContext(err, "mark dry run complete")
		}
		fmt.Fprintf(o.console, "\nDry run complete. Review the transcript "+
			"in %s, then re-run with --first-run to execute the real "+
			"sync.\n", o.cfg.FirstRunLogPath())
	case phase.FirstRunPending:
		if requestedDryRun {
			fmt.Fprintf(o.console, "\nDry run complete. No baseline was "+
				"established. Re-run with --first-run (without --dry-run) "+
				"to execute the initial sync.\n")
			return nil
		}
		if err := o.locks.MarkFirstRunComplete(
			o.cfg.SourceDir, o.cfg.RemoteTarget); err != nil {
			return errors.WithContext(err, "mark first run complete")
		}
		fmt.Fprintf(o.console, "\nFirst sync complete. Future scheduled "+
			"invocations will sync normally.\n")
	case phase.Normal:
		log.Info("Sync complete")
	}
	return nil
}

// logPathFor picks the log file for the phase: first-run activity
// (including the forced dry run) goes to its own log so the operator
// reviews a transcript uncluttered by steady-state runs.
func (o *Orchestrator) logPathFor(p phase.Phase) string {
	if p == phase.Normal {
		return o.cfg.SyncLogPath()
	}
	return o.cfg.FirstRunLogPath()
}

func (o *Orchestrator) openLog(path string) (afero.File, error) {
	if err := fs.MkdirAll(o.cfg.LogDir, 0755); err != nil {
		return nil, err
	}
	return fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
