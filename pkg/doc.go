// Package pkg provides shared utilities for the usbwire protocol engine.
//
// This package contains common functionality used by the wire, packet,
// device, and host packages, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for line, packet, and protocol faults
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentTransaction, "stall", "endpoint", "0x81")
//
// # Errors
//
// Faults are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrCRC) {
//	    // drop the packet
//	}
package pkg
