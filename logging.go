// logging.go - structured logging integration for the nodestreams package.
//
// Package-level configuration: logging is an infrastructure cross-cutting
// concern, streams share logging semantics, and a global avoids a
// per-stream configuration surface. Disabled (nil logger) by default.

package nodestreams

import (
	"sync"

	"github.com/joeycumines/logiface"
)

var globalLogger struct {
	sync.RWMutex
	logger *logiface.Logger[logiface.Event]
}

// SetLogger sets the package-level structured logger. Pass nil to disable
// logging (the default). Typically called once at process initialization.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// pkgLogger retrieves the package-level logger; may return nil.
func pkgLogger() *logiface.Logger[logiface.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}
