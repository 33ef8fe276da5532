// Package logging builds the zap loggers used by the commands.
package logging

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger at the given level ("debug", "info", "warn",
// "error"). verbose forces debug. Every entry carries a run id so that the
// lines of one invocation can be told apart in a shared log.
func New(level string, verbose bool) (*zap.Logger, string, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, "", fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Development = false
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build logger: %w", err)
	}

	runID := uuid.New().String()
	return logger.With(zap.String("run", runID)), runID, nil
}
