package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/driftlock/driftlock/pkg/errors"
)

// DefaultPath is the default location of the sync engine configuration
// file. The file is a flat KEY=value file, the same format as the process
// environment it gets merged with.
const DefaultPath = "/etc/driftlock/driftlock.env"

// BinaryOverrideKey is the environment variable that overrides discovery
// of the external sync binary. It is optional and not part of the
// required key set.
const BinaryOverrideKey = "RCLONE_BINARY"

// Required configuration keys. Every key must resolve to a non-empty
// value from the defaults, the config file, or the environment before
// any I/O is performed.
const (
	KeySourceDir        = "SOURCE_DIR"
	KeyRemoteTarget     = "REMOTE_TARGET"
	KeyRcloneConfigFile = "RCLONE_CONFIG_FILE"
	KeyFilterFile       = "FILTER_FILE"
	KeyLockDir          = "LOCK_DIR"
	KeyLogDir           = "LOG_DIR"
	KeyFirstRunLogName  = "FIRST_RUN_LOG_NAME"
	KeySyncLogName      = "SYNC_LOG_NAME"
	KeyLogMaxSize       = "LOG_MAX_SIZE"
	KeyLogMaxBackups    = "LOG_MAX_BACKUPS"
	KeyInitialDryLock   = "INITIAL_DRY_LOCK_NAME"
	KeyInitialLock      = "INITIAL_LOCK_NAME"
	KeyBisyncLock       = "BISYNC_LOCK_NAME"
	KeyRunLock          = "RUN_LOCK_NAME"
	KeyRcloneTimeout    = "RCLONE_TIMEOUT"
)

// requiredKeys is the fixed validation list. Order matters only for
// error message stability.
var requiredKeys = []string{
	KeySourceDir,
	KeyRemoteTarget,
	KeyRcloneConfigFile,
	KeyFilterFile,
	KeyLockDir,
	KeyLogDir,
	KeyFirstRunLogName,
	KeySyncLogName,
	KeyLogMaxSize,
	KeyLogMaxBackups,
	KeyInitialDryLock,
	KeyInitialLock,
	KeyBisyncLock,
	KeyRunLock,
	KeyRcloneTimeout,
}

// defaults hold the built-in value for every key that has one.
// SOURCE_DIR and REMOTE_TARGET have no sensible default and must be
// supplied by the config file or the environment.
var defaults = map[string]string{
	KeyRcloneConfigFile: "/config/rclone/rclone.conf",
	KeyFilterFile:       "/config/rclone/filter.txt",
	KeyLockDir:          "/config/locks",
	KeyLogDir:           "/config/logs",
	KeyFirstRunLogName:  "first-run.log",
	KeySyncLogName:      "sync.log",
	KeyLogMaxSize:       "10485760",
	KeyLogMaxBackups:    "5",
	KeyInitialDryLock:   "initial-dry-run.lock",
	KeyInitialLock:      "initial-sync.lock",
	KeyBisyncLock:       "bisync.lock",
	KeyRunLock:          "run.lock",
	KeyRcloneTimeout:    "10m",
}

// pathKeys are expanded with the user's home directory and must be
// usable as filesystem paths.
var pathKeys = []string{
	KeySourceDir, KeyRcloneConfigFile, KeyFilterFile, KeyLockDir, KeyLogDir,
}

// Config is the immutable result of resolving the configuration once at
// startup. All paths are expanded.
type Config struct {
	SourceDir        string
	RemoteTarget     string
	RcloneConfigFile string
	FilterFile       string
	LockDir          string
	LogDir           string
	FirstRunLogName  string
	SyncLogName      string
	LogMaxSize       int64
	LogMaxBackups    int
	InitialDryLock   string
	InitialLock      string
	BisyncLock       string
	RunLock          string
	RcloneTimeout    time.Duration
}

// FirstRunLogPath returns the full path to the first-run log file.
func (c Config) FirstRunLogPath() string {
	return filepath.Join(c.LogDir, c.FirstRunLogName)
}

// SyncLogPath returns the full path to the steady-state log file.
func (c Config) SyncLogPath() string {
	return filepath.Join(c.LogDir, c.SyncLogName)
}

// RunLockPath returns the full path to the exclusive run lock.
func (c Config) RunLockPath() string {
	return filepath.Join(c.LockDir, c.RunLock)
}

// homedirExpand will be overridden in mock tests.
var defaultHomedirExpand = homedir.Expand
var homedirExpand = defaultHomedirExpand

// Resolve loads the configuration from path, layering (lowest to highest
// precedence) built-in defaults, the config file, and the process
// environment. A missing config file is a warning, not an error, since
// defaults plus environment may suffice. If any required key is empty
// after layering, Resolve fails with a MissingConfigError naming every
// missing key.
func Resolve(path string, environ func(string) string) (Config, error) {
	values := map[string]string{}
	for key, value := range defaults {
		values[key] = value
	}

	fileValues, err := readFile(path)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return Config{}, errors.WithContext(err, "read config file")
		}
		log.WithField("path", path).Warn(
			"Config file not found. Continuing with defaults and environment.")
	}
	for key, value := range fileValues {
		values[key] = value
	}

	// Environment takes final precedence over both the file and the
	// defaults.
	for _, key := range requiredKeys {
		if env := environ(key); env != "" {
			values[key] = env
		}
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, errors.MissingConfigError{Keys: missing}
	}

	for _, key := range pathKeys {
		expanded, err := homedirExpand(values[key])
		if err != nil {
			return Config{}, errors.WithContext(err, "expand "+key)
		}
		values[key] = expanded
	}

	maxSize, err := strconv.ParseInt(values[KeyLogMaxSize], 10, 64)
	if err != nil || maxSize <= 0 {
		return Config{}, errors.NewFriendlyError(
			"%s must be a positive number of bytes, got %q",
			KeyLogMaxSize, values[KeyLogMaxSize])
	}

	maxBackups, err := strconv.Atoi(values[KeyLogMaxBackups])
	if err != nil || maxBackups < 0 {
		return Config{}, errors.NewFriendlyError(
			"%s must be a non-negative integer, got %q",
			KeyLogMaxBackups, values[KeyLogMaxBackups])
	}

	timeout, err := time.ParseDuration(values[KeyRcloneTimeout])
	if err != nil || timeout <= 0 {
		return Config{}, errors.NewFriendlyError(
			"%s must be a positive duration such as \"10m\", got %q",
			KeyRcloneTimeout, values[KeyRcloneTimeout])
	}

	return Config{
		SourceDir:        values[KeySourceDir],
		RemoteTarget:     values[KeyRemoteTarget],
		RcloneConfigFile: values[KeyRcloneConfigFile],
		FilterFile:       values[KeyFilterFile],
		LockDir:          values[KeyLockDir],
		LogDir:           values[KeyLogDir],
		FirstRunLogName:  values[KeyFirstRunLogName],
		SyncLogName:      values[KeySyncLogName],
		LogMaxSize:       maxSize,
		LogMaxBackups:    maxBackups,
		InitialDryLock:   values[KeyInitialDryLock],
		InitialLock:      values[KeyInitialLock],
		BisyncLock:       values[KeyBisyncLock],
		RunLock:          values[KeyRunLock],
		RcloneTimeout:    timeout,
	}, nil
}

// readFile parses the flat KEY=value config file at path.
func readFile(path string) (map[string]string, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.WithContext(err, "read file")
	}

	values, err := godotenv.Unmarshal(string(contents))
	if err != nil {
		return nil, errors.NewFriendlyError("Configuration file %q could "+
			"not be parsed. It must be a flat KEY=value file.\n"+
			"For reference, here is the error from the parser:\n%s",
			path, err)
	}
	return values, nil
}
