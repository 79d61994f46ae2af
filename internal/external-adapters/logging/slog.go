// Package logging adapts log/slog to the domain logger contract.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ochairo/distill/internal/domain/interfaces"
)

// SlogLogger writes domain log entries through a slog.Logger
type SlogLogger struct {
	logger *slog.Logger
}

var _ interfaces.Logger = &SlogLogger{}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// New creates a text logger writing to w at the given level. json selects
// the JSON handler instead.
func New(w io.Writer, level slog.Level, json bool) *SlogLogger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &SlogLogger{logger: slog.New(handler)}
}

func attrs(fields []interfaces.Field) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, slog.String(f.Key, err.Error()))
			continue
		}
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []interfaces.Field) {
	l.logger.LogAttrs(context.Background(), level, msg, attrs(fields)...)
}

// Debug implements interfaces.Logger
func (l *SlogLogger) Debug(msg string, fields ...interfaces.Field) {
	l.log(slog.LevelDebug, msg, fields)
}

// Info implements interfaces.Logger
func (l *SlogLogger) Info(msg string, fields ...interfaces.Field) {
	l.log(slog.LevelInfo, msg, fields)
}

// Warn implements interfaces.Logger
func (l *SlogLogger) Warn(msg string, fields ...interfaces.Field) {
	l.log(slog.LevelWarn, msg, fields)
}

// Error implements interfaces.Logger
func (l *SlogLogger) Error(msg string, fields ...interfaces.Field) {
	l.log(slog.LevelError, msg, fields)
}
