// Package scheduler collapses identical concurrent transform requests into a
// single execution and bounds how many executions of each kind run at once.
//
// A job is identified by its kind plus the JSON encoding of its Payload
// (cache key, origin and modifiers). The first caller registers the job in a
// singleflight group before it starts; later callers with the same signature
// attach to it and receive the same entry or error. Once the job finishes the
// registration is dropped, so a failed job is retried by the next request
// instead of replaying the failure.
//
// Each kind has a weighted semaphore (default 1) that serializes encoder work.
// Tasks run on the scheduler's own context: a client that disconnects stops
// waiting, but the job continues for everyone else.
package scheduler
