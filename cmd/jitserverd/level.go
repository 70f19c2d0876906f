package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

// zapLevelFromVerbosity maps repeated -v flags to a log level: no
// flags is Info, one is Debug, more stays Debug (there's nothing
// below it worth adding here).
func zapLevelFromVerbosity(cmd *cobra.Command) zapcore.Level {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity > 0 {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
