package core

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the level of log output of a Generator.
type LogLevel int

const (
	// LogLevelNoOutput disables log output.
	LogLevelNoOutput LogLevel = 0
	// LogLevelDetailedOutput enables progress logs.
	LogLevelDetailedOutput = 1
	// LogLevelAllOutputIncludingDebug enables progress and debug logs.
	LogLevelAllOutputIncludingDebug = 2
)

// newLogger builds a console logger writing to w. Timestamps are left out so
// two runs over the same input log the same lines.
func newLogger(w io.Writer, level LogLevel) *zap.Logger {
	if level == LogLevelNoOutput || w == nil {
		return zap.NewNop()
	}
	lvl := zapcore.InfoLevel
	if level >= LogLevelAllOutputIncludingDebug {
		lvl = zapcore.DebugLevel
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	enc.NameKey = "logger"
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core).Named("prchecks")
}
