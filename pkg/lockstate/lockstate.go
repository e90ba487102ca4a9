// Package lockstate persists the first-run protocol's progress as
// sentinel files in the lock directory. The mere presence of a marker
// records that a protocol phase completed; the bisync record additionally
// carries metadata for operator inspection.
package lockstate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/driftlock/driftlock/pkg/errors"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// clock is overridden with a fake clock in tests.
var clock = clockwork.NewRealClock()

// Names identifies the three sentinel files inside the lock directory.
type Names struct {
	InitialDryLock string
	InitialLock    string
	BisyncLock     string
}

// Snapshot is an immutable view of the lock markers, read once at the
// start of an invocation. All phase logic operates on this snapshot so
// the filesystem is never re-read mid-run.
type Snapshot struct {
	DryRunDone          bool
	FirstRunDone        bool
	BisyncRecordPresent bool
}

// Store reads and writes the lock markers in a single lock directory.
type Store struct {
	dir   string
	names Names
}

// New returns a Store for the given lock directory and marker names.
func New(dir string, names Names) *Store {
	return &Store{dir: dir, names: names}
}

// Read returns the current marker snapshot. It is a pure read with no
// side effects.
func (s *Store) Read() (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.DryRunDone, err = s.exists(s.names.InitialDryLock); err != nil {
		return Snapshot{}, errors.WithContext(err, "check dry-run lock")
	}
	if snap.FirstRunDone, err = s.exists(s.names.InitialLock); err != nil {
		return Snapshot{}, errors.WithContext(err, "check initial lock")
	}
	if snap.BisyncRecordPresent, err = s.exists(s.names.BisyncLock); err != nil {
		return Snapshot{}, errors.WithContext(err, "check bisync record")
	}
	return snap, nil
}

// MarkDryRunComplete records that the initial dry run finished. Calling
// it again once the marker exists is a no-op.
func (s *Store) MarkDryRunComplete() error {
	return s.touch(s.names.InitialDryLock)
}

// MarkFirstRunComplete records that the real first-run bisync finished.
// The bisync record is written to a temporary file and renamed into
// place so a crash can never leave a torn record, then the initial lock
// is created. Idempotent: if the initial lock already exists, the
// existing record is preserved untouched.
func (s *Store) MarkFirstRunComplete(sourcePath, destPath string) error {
	done, err := s.exists(s.names.InitialLock)
	if err != nil {
		return errors.WithContext(err, "check initial lock")
	}
	if done {
		return nil
	}

	record := Record{
		CreatedAt:  clock.Now().UTC(),
		SourcePath: sourcePath,
		DestPath:   destPath,
		SyncType:   "bisync",
	}

	tmp := filepath.Join(s.dir, s.names.BisyncLock+".tmp")
	if err := afero.WriteFile(fs, tmp, []byte(record.Marshal()), 0644); err != nil {
		return errors.WithContext(err, "write bisync record")
	}
	if err := fs.Rename(tmp, filepath.Join(s.dir, s.names.BisyncLock)); err != nil {
		return errors.WithContext(err, "commit bisync record")
	}

	return s.touch(s.names.InitialLock)
}

// RemoveInitialLock deletes a stale initial lock so a fresh dry run
// starts from a clean slate. Missing lock is not an error.
func (s *Store) RemoveInitialLock() error {
	err := fs.Remove(filepath.Join(s.dir, s.names.InitialLock))
	if err != nil && !isNotExist(err) {
		return errors.WithContext(err, "remove stale initial lock")
	}
	return nil
}

// ReadRecord parses the bisync record back for operator inspection.
func (s *Store) ReadRecord() (Record, error) {
	path := filepath.Join(s.dir, s.names.BisyncLock)
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if isNotExist(err) {
			return Record{}, errors.FileNotFound{Path: path}
		}
		return Record{}, errors.WithContext(err, "read bisync record")
	}
	return UnmarshalRecord(string(contents))
}

func (s *Store) exists(name string) (bool, error) {
	return afero.Exists(fs, filepath.Join(s.dir, name))
}

func (s *Store) touch(name string) error {
	if err := fs.MkdirAll(s.dir, 0755); err != nil {
		return errors.WithContext(err, "create lock directory")
	}
	f, err := fs.OpenFile(filepath.Join(s.dir, name),
		os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithContext(err, "create lock marker")
	}
	return f.Close()
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

// Record is the content of the bisync lock file. The field names and
// ordering are a stable operator-facing format.
type Record struct {
	CreatedAt  time.Time
	SourcePath string
	DestPath   string
	SyncType   string
}

// Marshal renders the record in its on-disk KEY=value form.
func (r Record) Marshal() string {
	return fmt.Sprintf(
		"CREATED_AT=%s\nSOURCE_PATH=%s\nDEST_PATH=%s\nSYNC_TYPE=%s\n",
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.SourcePath, r.DestPath, r.SyncType)
}

// UnmarshalRecord parses the on-disk form of the bisync record. Unknown
// lines are ignored so the format can grow fields without breaking old
// binaries.
func UnmarshalRecord(contents string) (Record, error) {
	var record Record
	for _, line := range strings.Split(contents, "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "CREATED_AT":
			createdAt, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return Record{}, errors.WithContext(err, "parse CREATED_AT")
			}
			record.CreatedAt = createdAt
		case "SOURCE_PATH":
			record.SourcePath = value
		case "DEST_PATH":
			record.DestPath = value
		case "SYNC_TYPE":
			record.SyncType = value
		}
	}
	if record.SyncType == "" {
		return Record{}, errors.New("bisync record is missing SYNC_TYPE")
	}
	return record, nil
}
