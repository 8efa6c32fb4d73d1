// Package logx wraps github.com/hashicorp/go-hclog with the engine's
// three-level logging policy (ERR for terminal failures, WARNING for
// transient in-cycle recoveries, INFO for successful renewals) and routes
// every log call through Redact first.
package logx

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// Logger is the logging surface every engine package depends on.
type Logger = hclog.Logger

// New builds the daemon's root logger.
func New(name string) Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.Info,
		Output:     os.Stderr,
		JSONFormat: false,
	})
}

// Err logs a terminal failure. args is the usual hclog key/value pair list.
func Err(l Logger, msg string, args ...interface{}) {
	l.Error(Redact(msg), redactArgs(args)...)
}

// Warn logs a transient, in-cycle recovery.
func Warn(l Logger, msg string, args ...interface{}) {
	l.Warn(Redact(msg), redactArgs(args)...)
}

// Info logs a successful operation.
func Info(l Logger, msg string, args ...interface{}) {
	l.Info(Redact(msg), redactArgs(args)...)
}

func redactArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			out[i] = Redact(s)
			continue
		}
		out[i] = a
	}
	return out
}
