// Package runlock serializes invocations of the engine on one host. A
// periodic scheduler can fire a new invocation while the previous one
// is still syncing; without exclusion both would race to mutate the
// lock markers and the same log file. The lock is advisory and scoped
// to the invocation: acquired before phase resolution, released on
// every exit path.
package runlock

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/driftlock/driftlock/pkg/errors"
)

// RunLock is an exclusive advisory lock on a file in the lock
// directory.
type RunLock struct {
	flock *flock.Flock
}

// Acquire takes the exclusive lock at path, failing fast with a
// LockContentionError if another invocation already holds it. The lock
// file itself is created if needed and is distinct from the protocol
// markers: its presence means nothing, only holding it does.
func Acquire(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WithContext(err, "create lock directory")
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.WithContext(err, "acquire run lock")
	}
	if !locked {
		return nil, errors.LockContentionError{Path: path}
	}
	return &RunLock{flock: fl}, nil
}

// Release drops the lock. Safe to call on all exit paths; releasing an
// already-released lock is a no-op.
func (l *RunLock) Release() {
	if l == nil || l.flock == nil {
		return
	}
	// Unlock errors are unactionable at this point: the process is
	// exiting and the kernel drops the lock with the descriptor anyway.
	_ = l.flock.Unlock()
}
