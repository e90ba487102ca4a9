package rclone

import (
	"os"
	"os/exec"
	"regexp"
	"strings"

	version "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/driftlock/driftlock/pkg/errors"
)

// BinaryName is the name of the external sync binary searched for on
// PATH when no override is given.
const BinaryName = "rclone"

// MinVersion is the oldest rclone this engine will drive. --fix-case
// and --recover first appeared in 1.64, so an older binary would reject
// the argument vector we build.
const MinVersion = "1.64.0"

// lookPath and versionOutput are overridden in tests.
var defaultLookPath = exec.LookPath
var lookPath = defaultLookPath

var defaultVersionOutput = func(binary string) (string, error) {
	out, err := exec.Command(binary, "version").Output()
	return string(out), err
}
var versionOutput = defaultVersionOutput

// Discover locates the rclone binary. The override (typically from the
// RCLONE_BINARY environment variable) wins when set, and must point at
// an executable file: a broken override is an error, never a silent
// fall back to PATH.
func Discover(override string) (string, error) {
	if override != "" {
		info, err := os.Stat(override)
		if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
			return "", errors.BinaryNotFoundError{
				Name: BinaryName, Override: override}
		}
		return override, nil
	}

	path, err := lookPath(BinaryName)
	if err != nil {
		return "", errors.BinaryNotFoundError{Name: BinaryName}
	}
	return path, nil
}

// versionPattern matches the first line of `rclone version` output,
// e.g. "rclone v1.66.0".
var versionPattern = regexp.MustCompile(`rclone v(\d+\.\d+(?:\.\d+)?)`)

// CheckVersion verifies the discovered binary is at least MinVersion.
// An unparseable version banner is only a warning: a custom build may
// report differently and refusing to run would be worse than trusting
// the operator's binary choice.
func CheckVersion(binary string) error {
	out, err := versionOutput(binary)
	if err != nil {
		return errors.WithContext(err, "query rclone version")
	}

	match := versionPattern.FindStringSubmatch(strings.SplitN(out, "\n", 2)[0])
	if match == nil {
		log.WithField("binary", binary).Warn(
			"Could not parse rclone version banner. Continuing anyway.")
		return nil
	}

	actual, err := version.NewVersion(match[1])
	if err != nil {
		return errors.WithContext(err, "parse rclone version")
	}
	minimum := version.Must(version.NewVersion(MinVersion))
	if actual.LessThan(minimum) {
		return errors.NewFriendlyError("rclone %s is too old: bisync "+
			"orchestration needs at least %s. Upgrade rclone or point "+
			"RCLONE_BINARY at a newer build.", actual, minimum)
	}
	return nil
}
