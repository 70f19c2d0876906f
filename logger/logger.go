// Package logger provides the process-wide structured logger for
// jitserverd, built on go.uber.org/zap.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance. It starts as a no-op so packages
// can log at init time without a nil-pointer panic; Initialize replaces
// it once the process entry point decides on an output format.
var Log *zap.SugaredLogger

func init() {
	Log = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. jsonOutput selects structured
// JSON (for log aggregation) over human-readable console output.
func Initialize(jsonOutput bool, level zapcore.Level) error {
	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		zapLogger, err = cfg.Build()
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(cfg),
				zapcore.AddSync(os.Stderr),
				level,
			),
		)
	}
	if err != nil {
		return err
	}

	Log = zapLogger.Sugar()
	return nil
}

// Named returns a child logger scoped to a component name, e.g.
// logger.Named("sequencer").
func Named(component string) *zap.SugaredLogger {
	return Log.Named(component)
}
