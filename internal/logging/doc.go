// Package logging provides the leveled logger used across media-cdn.
//
// Levels:
//   - DEBUG: cache lookups, queue lifecycle, encoder progress
//   - INFO: startup, job completion, cache writes
//   - WARN: swallowed cache-tier failures, stale origin mappings
//   - ERROR: engine and encoder failures
//   - FATAL: unrecoverable startup errors
//
// The level is read once from DEBUG or LOG_LEVEL. Configure adds an optional
// size-rotated log file next to stderr output.
package logging
