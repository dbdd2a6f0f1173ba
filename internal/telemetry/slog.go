package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger configures the global slog default logger based on the supplied
// format and level strings read from application configuration.
//
// format: "json"  → JSONHandler (machine readable; recommended for production)
//
//	anything else → TextHandler (human readable; suitable for local development)
//
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
//
// The configured logger is installed as the default so all slog.Info/Warn/Error
// calls elsewhere in the application automatically use it without needing to
// carry a *slog.Logger in context.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(newHandler(format, level)))
	slog.Info("logger initialised", "format", format, "level", level)
}

// SetLevel reinstalls the default logger at a new level, preserving the
// format. Called from the config watcher when logging.level changes on disk.
func SetLevel(format, level string) {
	slog.SetDefault(slog.New(newHandler(format, level)))
	slog.Info("log level changed", "level", level)
}

func newHandler(format, level string) slog.Handler {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // include file:line only when debugging
	}

	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}
