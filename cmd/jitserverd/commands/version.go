package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildVersion is set via -ldflags at release build time; left as
// "dev" in development builds.
var buildVersion = "dev"

// VersionCmd prints the server's build version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jitserverd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), buildVersion)
		return nil
	},
}
