// Package fraglog provides the package-level logger used for the one
// ambient logging concern the read path has: a single warning line when
// an I/O or corruption error surfaces.
//
// fragread never logs at Info level or above for normal operation --
// overflow, NONE tiles and empty attribute files are all ordinary
// control flow, not log-worthy events.
package fraglog

import "go.uber.org/zap"

var logger = zap.NewNop().Sugar()

// SetLogger replaces the package logger. Passing nil restores the no-op
// logger. Callers embedding fragread in a larger service should call this
// once at startup with their own *zap.SugaredLogger.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l
}

// Warnf logs an I/O or corruption warning. It is a thin wrapper so call
// sites don't need to import zap directly.
func Warnf(template string, args ...interface{}) {
	logger.Warnf(template, args...)
}
