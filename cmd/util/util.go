package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/driftlock/driftlock/pkg/errors"
	"github.com/driftlock/driftlock/pkg/version"
)

// HandleFatalError prints a human-readable diagnosis for err to stderr
// and exits non-zero. Friendly errors are printed verbatim; everything
// else gets its full context chain.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic converts a panic into a diagnostic and a non-zero exit so
// the scheduler sees a failure rather than a vanished process.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "driftlock crashed (version %s): %v\n\n%s\n",
		version.Version, r, debug.Stack())
	os.Exit(1)
}
