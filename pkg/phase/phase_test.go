package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftlock/driftlock/pkg/errors"
	"github.com/driftlock/driftlock/pkg/lockstate"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		firstRun bool
		snap     lockstate.Snapshot
		exp      Phase
		expErr   error
	}{
		{
			name:     "FirstRunNoLocks",
			firstRun: true,
			snap:     lockstate.Snapshot{},
			exp:      DryRunPending,
		},
		{
			name:     "FirstRunAfterDryRun",
			firstRun: true,
			snap:     lockstate.Snapshot{DryRunDone: true},
			exp:      FirstRunPending,
		},
		{
			name:     "FirstRunAfterBothLocks",
			firstRun: true,
			snap: lockstate.Snapshot{
				DryRunDone:          true,
				FirstRunDone:        true,
				BisyncRecordPresent: true,
			},
			exp: Normal,
		},
		{
			// A stale initial lock without a dry-run lock still forces
			// the dry run. The orchestrator removes the stale lock.
			name:     "FirstRunStaleInitialLock",
			firstRun: true,
			snap:     lockstate.Snapshot{FirstRunDone: true},
			exp:      DryRunPending,
		},
		{
			name:     "ScheduledBeforeFirstRun",
			firstRun: false,
			snap:     lockstate.Snapshot{},
			expErr:   errors.ErrFirstRunRequired,
		},
		{
			name:     "ScheduledAfterDryRunOnly",
			firstRun: false,
			snap:     lockstate.Snapshot{DryRunDone: true},
			expErr:   errors.ErrFirstRunRequired,
		},
		{
			name:     "ScheduledMissingRecord",
			firstRun: false,
			snap: lockstate.Snapshot{
				DryRunDone:   true,
				FirstRunDone: true,
			},
			expErr: errors.ErrLockInconsistent,
		},
		{
			name:     "ScheduledNormal",
			firstRun: false,
			snap: lockstate.Snapshot{
				DryRunDone:          true,
				FirstRunDone:        true,
				BisyncRecordPresent: true,
			},
			exp: Normal,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			resolved, err := Resolve(test.firstRun, test.snap)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.exp, resolved)
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	snap := lockstate.Snapshot{
		DryRunDone:          true,
		FirstRunDone:        true,
		BisyncRecordPresent: true,
	}

	first, err := Resolve(false, snap)
	assert.NoError(t, err)
	second, err := Resolve(false, snap)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, Normal, first)
}

func TestString(t *testing.T) {
	assert.Equal(t, "dry-run-pending", DryRunPending.String())
	assert.Equal(t, "first-run-pending", FirstRunPending.String())
	assert.Equal(t, "normal", Normal.String())
}
