package orchestrator

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock/driftlock/pkg/config"
	"github.com/driftlock/driftlock/pkg/errors"
	"github.com/driftlock/driftlock/pkg/lockstate"
)

// fakeRunner records invocations instead of spawning rclone.
type fakeRunner struct {
	calls  [][]string
	output string
	err    error
}

func (r *fakeRunner) Run(binary string, args []string, output io.Writer, logPath string) error {
	r.calls = append(r.calls, args)
	io.WriteString(output, r.output)
	return r.err
}

func newTestOrchestrator(t *testing.T, runner *fakeRunner) (*Orchestrator, config.Config, *bytes.Buffer) {
	t.Helper()

	discoverBinary = func(string) (string, error) { return "/usr/bin/rclone", nil }
	checkVersion = func(string) error { return nil }
	t.Cleanup(func() {
		discoverBinary = defaultDiscoverBinary
		checkVersion = defaultCheckVersion
	})

	dir := t.TempDir()
	cfg := config.Config{
		SourceDir:        "/data",
		RemoteTarget:     "remote:backup",
		RcloneConfigFile: filepath.Join(dir, "rclone.conf"),
		FilterFile:       filepath.Join(dir, "filter.txt"),
		LockDir:          filepath.Join(dir, "locks"),
		LogDir:           filepath.Join(dir, "logs"),
		FirstRunLogName:  "first-run.log",
		SyncLogName:      "sync.log",
		LogMaxSize:       1 << 20,
		LogMaxBackups:    3,
		InitialDryLock:   "initial-dry-run.lock",
		InitialLock:      "initial-sync.lock",
		BisyncLock:       "bisync.lock",
		RunLock:          "run.lock",
		RcloneTimeout:    10 * time.Minute,
	}

	o := New(cfg)
	o.runner = runner
	console := &bytes.Buffer{}
	o.console = console
	return o, cfg, console
}

func lockExists(t *testing.T, cfg config.Config, name string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(cfg.LockDir, name))
	if err != nil {
		require.True(t, os.IsNotExist(err))
		return false
	}
	return true
}

func TestScheduledRunBeforeFirstRunFails(t *testing.T) {
	runner := &fakeRunner{}
	o, _, _ := newTestOrchestrator(t, runner)

	err := o.Run(Options{})
	require.ErrorIs(t, err, errors.ErrFirstRunRequired)

	// The external tool must never have been invoked.
	assert.Empty(t, runner.calls)
}

func TestFirstInvocationForcesDryRun(t *testing.T) {
	runner := &fakeRunner{output: "transcript line\n"}
	o, cfg, console := newTestOrchestrator(t, runner)

	require.NoError(t, o.Run(Options{FirstRun: true}))

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "--dry-run")
	assert.NotContains(t, runner.calls[0], "--resync")

	assert.True(t, lockExists(t, cfg, cfg.InitialDryLock))
	assert.False(t, lockExists(t, cfg, cfg.InitialLock))

	// Output went to both the console and the first-run log.
	assert.Contains(t, console.String(), "transcript line")
	assert.Contains(t, console.String(), "--first-run")
	logContents, err := os.ReadFile(cfg.FirstRunLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(logContents), "transcript line")
	assert.Contains(t, string(logContents), "phase=dry-run-pending")
}

func TestForcedDryRunIgnoresForce(t *testing.T) {
	runner := &fakeRunner{}
	o, _, _ := newTestOrchestrator(t, runner)

	require.NoError(t, o.Run(Options{FirstRun: true, Force: true}))

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "--dry-run")
	assert.NotContains(t, runner.calls[0], "--force")
}

func TestStaleInitialLockRemovedBeforeDryRun(t *testing.T) {
	runner := &fakeRunner{err: errors.SubprocessError{ExitCode: 1}}
	o, cfg, _ := newTestOrchestrator(t, runner)

	// An initial lock with no dry-run lock means a partially torn-down
	// setup; the forced dry run must clear it even when the tool fails.
	require.NoError(t, os.MkdirAll(cfg.LockDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.LockDir, cfg.InitialLock), nil, 0644))

	err := o.Run(Options{FirstRun: true})
	require.Error(t, err)

	assert.False(t, lockExists(t, cfg, cfg.InitialLock))
	assert.False(t, lockExists(t, cfg, cfg.InitialDryLock))
}

func TestSecondFirstRunEstablishesBaseline(t *testing.T) {
	runner := &fakeRunner{}
	o, cfg, _ := newTestOrchestrator(t, runner)

	require.NoError(t, o.Run(Options{FirstRun: true}))
	require.NoError(t, o.Run(Options{FirstRun: true}))

	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[1], "--resync")
	assert.NotContains(t, runner.calls[1], "--dry-run")

	assert.True(t, lockExists(t, cfg, cfg.InitialLock))
	assert.True(t, lockExists(t, cfg, cfg.BisyncLock))

	record, err := lockstate.New(cfg.LockDir, lockstate.Names{
		InitialDryLock: cfg.InitialDryLock,
		InitialLock:    cfg.InitialLock,
		BisyncLock:     cfg.BisyncLock,
	}).ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "/data", record.SourcePath)
	assert.Equal(t, "remote:backup", record.DestPath)
	assert.Equal(t, "bisync", record.SyncType)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestRequestedDryRunDoesNotEstablishBaseline(t *testing.T) {
	runner := &fakeRunner{}
	o, cfg, console := newTestOrchestrator(t, runner)

	require.NoError(t, o.Run(Options{FirstRun: true}))

	// Previewing the resync must leave the double gate closed: only the
	// real first-run bisync may create the initial lock and the record.
	require.NoError(t, o.Run(Options{FirstRun: true, DryRun: true}))

	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[1], "--resync")
	assert.Contains(t, runner.calls[1], "--dry-run")

	assert.False(t, lockExists(t, cfg, cfg.InitialLock))
	assert.False(t, lockExists(t, cfg, cfg.BisyncLock))
	assert.Contains(t, console.String(), "No baseline was established")

	// A scheduled run is still gated, and the real first run still
	// establishes the baseline afterwards.
	require.ErrorIs(t, o.Run(Options{}), errors.ErrFirstRunRequired)
	require.NoError(t, o.Run(Options{FirstRun: true}))
	assert.True(t, lockExists(t, cfg, cfg.InitialLock))
	assert.True(t, lockExists(t, cfg, cfg.BisyncLock))
}

func TestNormalRunsAreIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	o, cfg, _ := newTestOrchestrator(t, runner)

	require.NoError(t, o.Run(Options{FirstRun: true}))
	require.NoError(t, o.Run(Options{FirstRun: true}))

	recordBefore, err := os.ReadFile(filepath.Join(cfg.LockDir, cfg.BisyncLock))
	require.NoError(t, err)

	require.NoError(t, o.Run(Options{}))
	require.NoError(t, o.Run(Options{}))

	require.Len(t, runner.calls, 4)
	for _, args := range runner.calls[2:] {
		assert.NotContains(t, args, "--resync")
		assert.NotContains(t, args, "--dry-run")
	}

	recordAfter, err := os.ReadFile(filepath.Join(cfg.LockDir, cfg.BisyncLock))
	require.NoError(t, err)
	assert.Equal(t, recordBefore, recordAfter)

	// Steady-state output lands in the sync log, not the first-run log.
	logContents, err := os.ReadFile(cfg.SyncLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(logContents), "phase=normal")
}

func TestFirstRunAfterCompletionIsPlainNormalSync(t *testing.T) {
	runner := &fakeRunner{}
	o, _, _ := newTestOrchestrator(t, runner)

	require.NoError(t, o.Run(Options{FirstRun: true}))
	require.NoError(t, o.Run(Options{FirstRun: true}))
	require.NoError(t, o.Run(Options{FirstRun: true}))

	require.Len(t, runner.calls, 3)
	assert.NotContains(t, runner.calls[2], "--resync")
	assert.NotContains(t, runner.calls[2], "--dry-run")
}

func TestSubprocessFailureLeavesLocksUntouched(t *testing.T) {
	runner := &fakeRunner{}
	o, cfg, _ := newTestOrchestrator(t, runner)

	require.NoError(t, o.Run(Options{FirstRun: true}))
	require.NoError(t, o.Run(Options{FirstRun: true}))

	runner.err = errors.SubprocessError{ExitCode: 7}
	err := o.Run(Options{})

	var subprocessErr errors.SubprocessError
	require.True(t, errors.As(err, &subprocessErr))
	assert.Equal(t, 7, subprocessErr.ExitCode)

	// Retry resumes from the same phase.
	assert.True(t, lockExists(t, cfg, cfg.InitialLock))
	assert.True(t, lockExists(t, cfg, cfg.BisyncLock))

	runner.err = nil
	require.NoError(t, o.Run(Options{}))
}

func TestInconsistentLocksFail(t *testing.T) {
	runner := &fakeRunner{}
	o, cfg, _ := newTestOrchestrator(t, runner)

	require.NoError(t, os.MkdirAll(cfg.LockDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.LockDir, cfg.InitialLock), nil, 0644))

	err := o.Run(Options{})
	require.ErrorIs(t, err, errors.ErrLockInconsistent)
	assert.Empty(t, runner.calls)
}

func TestBinaryDiscoveryFailureAbortsBeforeRun(t *testing.T) {
	runner := &fakeRunner{}
	o, _, _ := newTestOrchestrator(t, runner)
	discoverBinary = func(string) (string, error) {
		return "", errors.BinaryNotFoundError{Name: "rclone"}
	}

	require.NoError(t, os.Setenv("RCLONE_BINARY", ""))
	err := o.Run(Options{FirstRun: true})

	var notFound errors.BinaryNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Empty(t, runner.calls)
}
