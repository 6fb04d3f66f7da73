package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogLogger bridges whatsmeow's logger onto slog.
type slogLogger struct {
	logger *slog.Logger
	min    slog.Level
}

func newLibraryLogger(logger *slog.Logger, level string) waLog.Logger {
	return &slogLogger{logger: logger.With("component", "whatsmeow"), min: parseLevel(level)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func (l *slogLogger) log(level slog.Level, msg string, args []any) {
	if level < l.min {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(msg, args...))
}

func (l *slogLogger) Errorf(msg string, args ...any) { l.log(slog.LevelError, msg, args) }
func (l *slogLogger) Warnf(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *slogLogger) Infof(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *slogLogger) Debugf(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }

func (l *slogLogger) Sub(module string) waLog.Logger {
	return &slogLogger{logger: l.logger.With("module", module), min: l.min}
}
