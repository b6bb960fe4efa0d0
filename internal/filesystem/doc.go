// Package filesystem wraps the os calls used by the local cache tier and the
// transcode scratch directory with retries on stale NFS file handles (ESTALE).
//
// Only ESTALE is retried; every other error is returned immediately. Retry
// attempts, successes, failures and durations are reported through an
// Observer labelled by the volume a path belongs to (see VolumeResolver).
package filesystem
