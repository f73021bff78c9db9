// Package logging builds slog loggers for the CLI, the store daemon, and
// the capture controller.
//
// Two output formats are supported: a pretty console handler for
// interactive use and a compact JSON handler for log files and services.
// Capture-side components log and swallow their own failures; nothing in
// this package ever panics on a bad attribute.
package logging
