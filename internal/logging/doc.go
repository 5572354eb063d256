// Package logging builds the slog loggers used across loom.
//
// It provides a compact console handler for interactive use, a JSON handler
// for machine consumption, typed attribute helpers, and context-derived
// fields so every log line carries the segment index, stage, and run
// identifiers without repetitive call-site plumbing.
package logging
