// Package logging wraps btclog the way every btcsuite-family daemon does:
// one subsystem logger handed out at startup, with a Disabled backend for
// tests that don't want log noise.
package logging

import (
	"os"

	"github.com/btcsuite/btclog"
)

// Subsystem is the logger tag used throughout the service, matching the
// short all-caps subsystem convention (BTCD, WLLT, ...) btcsuite daemons
// use.
const Subsystem = "ACCD"

var backend = btclog.NewBackend(os.Stdout)

// Logger returns the package-wide subsystem logger at the given level.
func Logger(level btclog.Level) btclog.Logger {
	log := backend.Logger(Subsystem)
	log.SetLevel(level)
	return log
}

// Disabled returns a logger that discards everything, for tests that would
// otherwise spam stdout with info/debug lines.
func Disabled() btclog.Logger {
	l := backend.Logger(Subsystem)
	l.SetLevel(btclog.LevelOff)
	return l
}
