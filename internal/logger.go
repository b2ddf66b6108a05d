package internal

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger installs a text slog handler as the default logger at the
// given level ("debug", "info", "warn", "error"; anything else means
// info).
func InitLogger(level string) {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv})))
}
