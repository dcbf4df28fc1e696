package application

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevelEnv selects the level configured by ConfigureLogging.
const LogLevelEnv = "BANKPREP_LOG_LEVEL"

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler
// writing to w and takes the level from BANKPREP_LOG_LEVEL.
// It defaults to Info level if the variable is unset or unrecognized.
func ConfigureLogging(w io.Writer) {
	logLevel.Set(parseLogLevel(os.Getenv(LogLevelEnv)))

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel changes the level of the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
