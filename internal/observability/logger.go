// Package observability defines the logging primitives shared by the chronicle binaries
// and the field helpers for the identifiers they log.
package observability

import (
	"fmt"
	"sync/atomic"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

type holder struct{ logger Logger }

// Replay units and the risk loop log from their own goroutines while a binary may still
// be installing its logger.
var defaultLogger atomic.Pointer[holder]

func init() {
	defaultLogger.Store(&holder{logger: noopLogger{}})
}

// SetLogger overrides the process-wide logger. A nil logger discards everything.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	defaultLogger.Store(&holder{logger: logger})
}

// Log returns the process-wide logger.
func Log() Logger {
	return defaultLogger.Load().logger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// Err is shorthand for an "error" field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Security logs a security as SYMBOL.COUNTRY.
func Security(security fmt.Stringer) Field {
	return Field{Key: "security", Value: security.String()}
}

// Kind logs a market data record kind.
func Kind(kind fmt.Stringer) Field {
	return Field{Key: "kind", Value: kind.String()}
}

// Account logs a trading account identifier.
func Account[A ~string](account A) Field {
	return Field{Key: "account", Value: string(account)}
}
