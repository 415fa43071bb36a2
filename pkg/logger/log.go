package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Log is the global logger instance. It always writes to stderr:
// when serving MCP over stdio, stdout belongs to the protocol.
var Log *slog.Logger
var LogLevel *slog.LevelVar

func init() {
	LogLevel = &slog.LevelVar{}
	opts := &slog.HandlerOptions{
		Level: LogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "time" {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	Log = slog.New(slog.NewTextHandler(os.Stderr, opts))
	LogLevel.Set(slog.LevelWarn)
}

// SetLogLevel 调整全局日志级别 ("debug", "info", "warn", "error")
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		LogLevel.Set(slog.LevelDebug)
	case "info":
		LogLevel.Set(slog.LevelInfo)
	case "warn":
		LogLevel.Set(slog.LevelWarn)
	case "error":
		LogLevel.Set(slog.LevelError)
	}
}
