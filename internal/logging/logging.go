// Package logging is a thin facade over charmbracelet/log so call sites
// write logging.Info(...) rather than importing the library directly
// everywhere. The level is set once at startup from configuration.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

// SetLevel parses one of "debug", "info", "warn", "error" and sets the
// package logger's level, defaulting to info on an unrecognized value.
func SetLevel(level string) {
	switch level {
	case "debug":
		base.SetLevel(log.DebugLevel)
	case "warn":
		base.SetLevel(log.WarnLevel)
	case "error":
		base.SetLevel(log.ErrorLevel)
	default:
		base.SetLevel(log.InfoLevel)
	}
}

// With returns a derived logger carrying the given key/value pairs on
// every subsequent call, e.g. logging.With("doc", id).Info("negotiated").
func With(keyvals ...interface{}) *log.Logger {
	return base.With(keyvals...)
}

func Debug(msg interface{}, keyvals ...interface{}) { base.Debug(msg, keyvals...) }
func Info(msg interface{}, keyvals ...interface{})  { base.Info(msg, keyvals...) }
func Warn(msg interface{}, keyvals ...interface{})  { base.Warn(msg, keyvals...) }
func Error(msg interface{}, keyvals ...interface{}) { base.Error(msg, keyvals...) }
