// Package slogx holds the slog attributes shared by every package so log
// records use the same keys.
package slogx

import (
	"fmt"
	"log/slog"
)

const (
	// KeyLoggerName names the component that produced a record.
	KeyLoggerName = "logger"
	// KeyError carries the error message of a record.
	KeyError = "error"
)

// Error renders err under KeyError. A nil error renders as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Stringer renders value with its String method.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName tags a record with the component name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Component returns the default logger tagged with name. It reads the
// default at call time, so binaries must install their handler first.
func Component(name string) *slog.Logger {
	return slog.Default().With(LoggerName(name))
}
