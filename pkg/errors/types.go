package errors

import (
	"fmt"
	"strings"
)

// ErrFirstRunRequired is returned when a normal sync is attempted before
// the first-run protocol has completed.
var ErrFirstRunRequired = New("first run has not completed. " +
	"Run with --first-run to review a dry-run transcript, then run with " +
	"--first-run again to execute the initial sync")

// ErrLockInconsistent is returned when the initial lock exists but the
// bisync record is missing, meaning the lock directory has been tampered
// with or partially deleted.
var ErrLockInconsistent = New("lock state is inconsistent: the initial " +
	"sync lock exists but the bisync record is missing. Remove the lock " +
	"directory and repeat the first-run protocol")

// MissingConfigError represents required configuration keys that did not
// resolve to a value from the defaults, the config file, or the environment.
type MissingConfigError struct {
	Keys []string
}

func (err MissingConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s",
		strings.Join(err.Keys, ", "))
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// BinaryNotFoundError represents a missing external sync binary: neither
// the override environment variable nor the search path yielded an
// executable file.
type BinaryNotFoundError struct {
	Name     string
	Override string
}

func (err BinaryNotFoundError) Error() string {
	if err.Override != "" {
		return fmt.Sprintf("%s override %q is not an executable file",
			err.Name, err.Override)
	}
	return fmt.Sprintf("%s not found in PATH", err.Name)
}

// SubprocessError represents a non-zero exit from the external sync tool.
// Lock state is left untouched so the next invocation retries the same
// phase.
type SubprocessError struct {
	ExitCode int
	LogPath  string
}

func (err SubprocessError) Error() string {
	return fmt.Sprintf("sync tool exited with code %d (see %s)",
		err.ExitCode, err.LogPath)
}

// LockContentionError represents another invocation holding the run lock.
type LockContentionError struct {
	Path string
}

func (err LockContentionError) Error() string {
	return fmt.Sprintf("another sync invocation is already running "+
		"(run lock %q is held)", err.Path)
}
