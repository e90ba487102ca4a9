// Package rclone builds and runs invocations of the external rclone
// binary. The bisync algorithm itself (conflict resolution, checksums,
// transfer) is rclone's problem; this package only owns the
// command-line contract.
package rclone

import (
	"time"

	"github.com/driftlock/driftlock/pkg/phase"
)

// PathPair is the ordered (source, target) pair of bisync positionals.
// It exists so the two sides can never be swapped by string handling:
// the only way to get them into an argument vector is through Args,
// which always emits Source before Target.
type PathPair struct {
	Source string
	Target string
}

// Options are the operator-requested toggles for one invocation.
type Options struct {
	// DryRun requests a dry run. The resolved phase may force one
	// regardless.
	DryRun bool
	// Force passes rclone's --force. Ignored during any dry run.
	Force bool
}

// Spec is everything the builder needs that comes from configuration.
type Spec struct {
	ConfigFile string
	FilterFile string
	Timeout    time.Duration
	Paths      PathPair
}

// Args produces the complete argument vector for one bisync invocation
// as discrete tokens. Nothing is ever interpolated into a shell string,
// so configuration-sourced paths cannot smuggle in extra arguments.
//
// The comparison policy is fixed: size, modtime and checksum must all
// agree before two files are considered identical. The resilience and
// recovery flags let rclone pick up gracefully after an interrupted
// run, which matters under an unattended scheduler.
func Args(p phase.Phase, opts Options, spec Spec) []string {
	args := []string{
		"bisync",
		"--config", spec.ConfigFile,
		"--filters-file", spec.FilterFile,
		"--compare", "size,modtime,checksum",
		"--resilient",
		"--recover",
		"--fix-case",
		"--drive-acknowledge-abuse",
		"--timeout", spec.Timeout.String(),
	}

	dryRun := opts.DryRun || p == phase.DryRunPending
	if dryRun {
		args = append(args, "--dry-run")
	}
	if opts.Force && !dryRun {
		args = append(args, "--force")
	}
	if p == phase.FirstRunPending {
		args = append(args, "--resync")
	}

	// Positionals come last, always source then target.
	return append(args, spec.Paths.Source, spec.Paths.Target)
}
