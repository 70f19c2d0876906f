package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eclipse-openj9/openj9-sub029/cmd/jitserverd/commands"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

var rootCmd = &cobra.Command{
	Use:   "jitserverd",
	Short: "jitserverd - out-of-process JIT compilation coordination server",
	Long: `jitserverd coordinates compilation requests from remote client VMs:
session lifecycle, request ordering, per-client cache invalidation and
an optional AOT method cache.

Examples:
  jitserverd serve              # start the coordination server
  jitserverd config show        # print the effective configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "show" {
			return nil
		}
		jsonLog, _ := cmd.Flags().GetBool("json-log")
		level := zapLevelFromVerbosity(cmd)
		return logger.Initialize(jsonLog, level)
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity (repeat for more detail)")
	rootCmd.PersistentFlags().Bool("json-log", false, "emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
