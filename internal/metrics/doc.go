// Package metrics provides Prometheus instrumentation for media-cdn.
//
// All metrics are registered with promauto and prefixed with "media_cdn_".
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//   - HTTPRangeRequestsTotal: partial, full and unsatisfiable range requests
//
// ## Cache Metrics
//   - CacheLookupsTotal: lookups by tier (local, remote) and result
//   - CacheWritesTotal, CacheWriteBytes: write-through and promotion writes
//   - CachePromotionsTotal: remote hits copied into the local tier
//   - CacheLocalEntries, CacheLocalBytes: sampled by the Collector
//
// ## Scheduler Metrics
//   - JobsTotal, JobDuration, JobQueueWait by kind
//   - JobsDedupedTotal: callers that attached to an in-flight job
//   - JobsInProgress, JobsInFlight
//
// ## Engine Metrics
//   - ImageTransformsTotal, ImageTransformDuration by engine
//   - TranscodesTotal by codec, device and status
//   - TranscodeFPS, TranscodeProcessesRunning, FrameCountDuration
//
// ## Origin Metrics
//   - OriginRefreshTotal, OriginRefreshDuration, OriginMappings
//   - OriginResolutionsTotal by result
//
// ## Background Work
//   - BackgroundQueueDepth, BackgroundTasksTotal (success, error, dropped)
//
// Call InitializeMetrics once at startup so every label combination is
// exported on the first scrape.
package metrics
