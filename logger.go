package vkc

import (
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// loggerPtr holds the active logger, SetLogger may race with logging from a backend goroutine.
var loggerPtr atomic.Pointer[logrus.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// newNopLogger returns a logger which discards everything. The level is set below Error so the
// formatting work is skipped as well.
func newNopLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// SetLogger configures the logger used by vkc and its backends. By default nothing is logged.
// Pass nil to restore the silent default.
//
// Levels used:
//   - Debug: object creation and destruction, raw query values
//   - Info: adapter and queue family selection, dispatch shape, timing
//   - Warn: incomplete dispatch coverage, timestamps unavailable, validation layer warnings
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Backends call this so they share the caller's setup.
func Logger() *logrus.Logger {
	return loggerPtr.Load()
}
