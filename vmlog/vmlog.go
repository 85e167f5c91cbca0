// Package vmlog is the process-wide structured logger the interpreter
// and its trap collaborators share. One *zap.Logger, configured once at
// startup and read everywhere else through L() and its sync.Once guard.
package vmlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// L returns the process-wide logger, defaulting to a no-op logger until
// Configure or SetLevel installs a real one. Safe for concurrent use.
func L() *zap.Logger {
	once.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// Configure installs cfg.Build() as the process-wide logger. Call this
// once at startup, before any trap or interpreter code runs.
func Configure(cfg zap.Config) error {
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = l
	once.Do(func() {})
	return nil
}

// SetLevel is a shortcut for the common case: a development logger at
// the given level, human-readable console output.
func SetLevel(level zap.AtomicLevel) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	return Configure(cfg)
}

// Sync flushes any buffered log entries. Wired to the VM's FLUSH_VM
// trap in main.go.
func Sync() error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}
