// Package cache implements the two derivative cache tiers and the tiered
// store that searches them.
//
// LocalStore keeps one file per cache key under a directory and writes
// through a temp file plus rename. RemoteStore keeps objects in an
// S3-compatible bucket. Store looks up local first, then remote; a remote hit
// is promoted into the local tier on the background pool. WriteThrough
// schedules an independent put per tier and returns at once.
//
// Tier I/O errors are logged and counted, never returned from Lookup.
package cache
