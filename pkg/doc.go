// Package pkg provides shared utilities for the reset interface, the device
// stack and the host tools.
//
// It contains:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for control transfers, the device stack and board
//     discovery
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentReset, "reset requested", "flags", 1)
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrRejected) {
//	    // The board refused the request
//	}
package pkg
