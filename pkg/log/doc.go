// Package log wraps zerolog with conclave's component-logger convention:
// log.Init once at startup, log.WithComponent(name) per subsystem.
package log
