package queryreader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (lv LogLevel) slogLevel() slog.Level {
	switch lv {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// ParseLogLevel maps debug/info/warn/error (any case) to a LogLevel, falling back to WARN.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "error":
		return LogLevelError
	default:
		return LogLevelWarn
	}
}

var (
	logLevel  atomic.Int32
	logOutput atomic.Pointer[slog.Logger]
)

func init() {
	logLevel.Store(int32(LogLevelWarn))
}

// SetLogLevel overrides logLevel for queryreader library, default is WARN
func SetLogLevel(lv LogLevel) {
	logLevel.Store(int32(lv))
}

// SetLogger routes library logs to l. Passing nil restores slog.Default().
func SetLogger(l *slog.Logger) {
	logOutput.Store(l)
}

func logger() *slog.Logger {
	if l := logOutput.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func logf(lv LogLevel, format string, v ...interface{}) {
	if LogLevel(logLevel.Load()) > lv {
		return
	}
	logger().Log(context.Background(), lv.slogLevel(), fmt.Sprintf(format, v...), "component", "queryreader")
}

func LogDebugf(format string, v ...interface{}) {
	logf(LogLevelDebug, format, v...)
}

func LogInfof(format string, v ...interface{}) {
	logf(LogLevelInfo, format, v...)
}

func LogWarnf(format string, v ...interface{}) {
	logf(LogLevelWarn, format, v...)
}

func LogErrorf(format string, v ...interface{}) {
	logf(LogLevelError, format, v...)
}
