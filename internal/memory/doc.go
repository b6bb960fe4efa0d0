// Package memory configures Go's soft memory limit for containers and holds
// back new transforms while the heap is close to it.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//   - GOMEMLIMIT: Standard Go variable. If set, it takes precedence and is
//     only reported.
//   - MEMORY_LIMIT: Container limit in bytes, usually from the Kubernetes
//     Downward API.
//   - MEMORY_RATIO: Fraction of MEMORY_LIMIT given to the Go heap
//     (default 0.85). The rest is left for libvips and ffmpeg, which
//     allocate outside the Go heap.
//
// # Backpressure
//
// A [Monitor] samples heap allocation against the limit. Above the critical
// mark it forces a GC and reports itself paused until usage drops below the
// high mark. Transform tasks call [Monitor.Wait] before starting, so cached
// responses keep flowing while new work queues up.
package memory
