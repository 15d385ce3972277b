// Package logging is a thin level-gated front-end over log/slog.
//
// Init wires a text handler on stderr once; later calls only adjust the
// level. Packages log through the helpers so call sites stay terse.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	level  = new(slog.LevelVar)
	logger *slog.Logger
)

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	case "off":
		return slog.LevelError + 4
	}
	return slog.LevelInfo
}

func ensure() {
	once.Do(func() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	})
}

// Init sets the active level, creating the shared handler on first use.
func Init(levelName string) {
	ensure()
	level.Set(ParseLevel(levelName))
}

// Logger returns the shared logger, initializing at info if needed.
func Logger() *slog.Logger {
	ensure()
	return logger
}

func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }
