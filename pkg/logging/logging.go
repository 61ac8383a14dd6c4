// Package logging builds the slog loggers used across FlagSift.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/phsym/console-slog"
)

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	var lv slog.LevelVar
	if err := lv.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lv.Level()
}

// New returns a console logger writing to w.
func New(w io.Writer, level string, noColor bool) *slog.Logger {
	return slog.New(console.NewHandler(w, &console.HandlerOptions{
		Level:      ParseLevel(level),
		NoColor:    noColor,
		TimeFormat: "15:04:05.000",
	}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
