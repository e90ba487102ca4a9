package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftlock/driftlock/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of driftlock.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("driftlock version %s\n", version.Version)
		},
	}
}
