// slog.go configures the process-wide logger. Every component logs through
// slog's default logger; cmd/server calls SetupLogger once, from the
// telemetry.logging config, before anything else starts.
package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the default slog logger. format "json" selects the
// JSON handler (production), anything else the text handler. Unknown levels
// fall back to info; debug additionally records source positions.
func SetupLogger(format, level string) {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("Logger configured", "format", format, "level", lvl.String())
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
