// File: internal/logging/logger.go
// Brief: Structured logger construction for the CLI.

package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// New builds the logger every command shares. Debug switches to the
// development encoder so deploy progress is readable line by line.
func New(level string) (logr.Logger, error) {
	zapLevel, development, err := parseLevel(level)
	if err != nil {
		return logr.Logger{}, err
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	opts := crzap.Options{Development: development, Level: &atomic}
	return crzap.New(crzap.UseFlagOptions(&opts)), nil
}

func parseLevel(level string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return zapcore.DebugLevel, true, nil
	case "info", "":
		return zapcore.InfoLevel, false, nil
	case "warn", "warning":
		return zapcore.WarnLevel, false, nil
	case "error":
		return zapcore.ErrorLevel, false, nil
	default:
		return 0, false, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}
