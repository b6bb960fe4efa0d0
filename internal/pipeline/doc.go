// Package pipeline answers derivative requests.
//
// A request is parsed into a resolved modifier set and a cache key. Hits are
// served from the tiered cache. Misses resolve the media id to an origin
// object and run a transform through the scheduler, so identical concurrent
// requests share one execution. Successful results are written through to
// every cache tier in the background.
package pipeline
