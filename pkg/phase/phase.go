// Package phase derives the operating mode for one invocation from the
// --first-run flag and the lock marker snapshot. The full transition
// table lives in Resolve so it can be read and tested in one place.
package phase

import (
	"github.com/driftlock/driftlock/pkg/errors"
	"github.com/driftlock/driftlock/pkg/lockstate"
)

// Phase is the resolved operating mode. It is derived fresh on every
// invocation and never persisted.
type Phase int

const (
	// DryRunPending forces a dry run: no data may move until an
	// operator has reviewed a transcript.
	DryRunPending Phase = iota
	// FirstRunPending runs the real first bisync, establishing the
	// baseline with a resync.
	FirstRunPending
	// Normal is a steady-state bisync against the established baseline.
	Normal
)

// String returns a human readable label.
func (p Phase) String() string {
	switch p {
	case DryRunPending:
		return "dry-run-pending"
	case FirstRunPending:
		return "first-run-pending"
	case Normal:
		return "normal"
	default:
		return "unknown"
	}
}

// Resolve maps the --first-run flag and the marker snapshot onto a
// phase, or fails when the markers forbid any sync at all.
//
//	first-run  dry  initial  ->  phase
//	yes        *    yes          Normal (first run already confirmed)
//	yes        yes  no           FirstRunPending
//	yes        no   *            DryRunPending
//	no         *    no           error: first run required
//	no         *    yes          Normal (bisync record must also exist)
//
// A --first-run invocation after both locks exist is deliberately a
// plain Normal sync: re-establishing the baseline on every such
// invocation would silently mask divergence, so re-baselining requires
// removing the lock directory instead.
func Resolve(firstRun bool, snap lockstate.Snapshot) (Phase, error) {
	if firstRun {
		switch {
		case !snap.DryRunDone:
			return DryRunPending, nil
		case !snap.FirstRunDone:
			return FirstRunPending, nil
		default:
			return Normal, nil
		}
	}

	if !snap.FirstRunDone {
		return 0, errors.ErrFirstRunRequired
	}
	if !snap.BisyncRecordPresent {
		return 0, errors.ErrLockInconsistent
	}
	return Normal, nil
}
