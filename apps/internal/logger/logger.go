// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package logger provides the structured logger shared by the cache engine and the
// command dispatcher. It is a thin layer over log/slog so callers can plug in their own
// handlers.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type Level string

const (
	Info  Level = "info"
	Err   Level = "error"
	Warn  Level = "warn"
	Debug Level = "debug"
)

// LoggerInterface defines the methods that a logger should implement
type LoggerInterface interface {
	Log(ctx context.Context, level Level, message string, fields ...any)
}

// logger is the slog backed LoggerInterface.
type logger struct {
	logging *slog.Logger
}

// New creates a new logger instance with full `slog` logging support.
// A default logger writing text to stdout is provided if loggerInterface is nil or is not a *slog.Logger.
func New(loggerInterface interface{}) LoggerInterface {
	if slogLogger, ok := loggerInterface.(*slog.Logger); ok && slogLogger != nil {
		return &logger{logging: slogLogger}
	}
	return &logger{logging: slog.New(slog.NewTextHandler(os.Stdout, nil))}
}

// Discard returns a logger that drops every record.
func Discard() LoggerInterface {
	return &logger{logging: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l LoggerInterface) LoggerInterface {
	if l == nil {
		return Discard()
	}
	return l
}

// Log method with full support for structured logging and multiple log levels.
func (a *logger) Log(ctx context.Context, level Level, message string, fields ...any) {
	if a == nil || a.logging == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var slogLevel slog.Level
	switch level {
	case Info:
		slogLevel = slog.LevelInfo
	case Err:
		slogLevel = slog.LevelError
	case Warn:
		slogLevel = slog.LevelWarn
	case Debug:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	a.logging.Log(ctx, slogLevel, message, fields...)
}

// Field creates a slog field for any value
func Field(key string, value any) any {
	return slog.Any(key, value)
}
