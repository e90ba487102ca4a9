// Package logrotate implements size-triggered rotation of a single
// append-only log file into a bounded set of numbered backups.
package logrotate

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/driftlock/driftlock/pkg/errors"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// RotateIfNeeded rotates path once its size reaches maxSize bytes.
//
// Backups are numbered path.1 (newest) through path.maxBackups (oldest).
// Existing backups shift upward from the highest index down so no rename
// ever overwrites a file that hasn't moved yet; the backup at
// maxBackups, if present, is discarded. The active file is renamed to
// path.1 (never copied, so the newest data cannot be lost) and a fresh
// empty active file is created in its place.
//
// Absent files and files below the threshold are a no-op. With
// maxBackups of zero the active file's content is simply discarded.
func RotateIfNeeded(path string, maxSize int64, maxBackups int) error {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "stat log file")
	}
	if info.Size() < maxSize {
		return nil
	}

	// Discard the oldest backup, then shift the rest up one slot.
	oldest := backupName(path, maxBackups)
	if exists, _ := afero.Exists(fs, oldest); exists {
		if err := fs.Remove(oldest); err != nil {
			return errors.WithContext(err, "discard oldest backup")
		}
	}
	for i := maxBackups - 1; i >= 1; i-- {
		from := backupName(path, i)
		if exists, _ := afero.Exists(fs, from); !exists {
			continue
		}
		if err := fs.Rename(from, backupName(path, i+1)); err != nil {
			return errors.WithContext(err,
				fmt.Sprintf("shift backup %d", i))
		}
	}

	if maxBackups > 0 {
		if err := fs.Rename(path, backupName(path, 1)); err != nil {
			return errors.WithContext(err, "rotate active log")
		}
	} else {
		if err := fs.Remove(path); err != nil {
			return errors.WithContext(err, "discard active log")
		}
	}

	fresh, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return errors.WithContext(err, "create fresh log file")
	}
	return fresh.Close()
}

func backupName(path string, index int) string {
	return fmt.Sprintf("%s.%d", path, index)
}
