// Package logger builds the levelled zap logger used across dedup.
//
// The default level is warn so normal runs stay quiet, --verbose raises it
// to info and --debug to debug. The DEDUP_LOG environment variable (also
// honoured from a .env file loaded by the CLI) overrides both, mirroring
// the usual RUST_LOG-style convention.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar is the environment variable that overrides the log level.
const EnvVar = "DEDUP_LOG"

// New builds and returns dedup's logger, writing to stderr.
func New(verbose, debug bool) (*zap.SugaredLogger, error) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.InfoLevel
	}
	if debug {
		level = zapcore.DebugLevel
	}

	if env := os.Getenv(EnvVar); env != "" {
		parsed, err := zapcore.ParseLevel(env)
		if err == nil {
			level = parsed
		}
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.DisableCaller = true
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
