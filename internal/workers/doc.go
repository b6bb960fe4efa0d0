// Package workers sizes worker counts and runs detached background work.
//
// # Sizing
//
// Count, ForCPU and ForIO derive goroutine counts from GOMAXPROCS, which Go
// sets from the container CPU limit.
//
// # Background pool
//
// Pool executes fire-and-forget tasks such as cache promotion and
// write-through. The response path submits and returns immediately; failures
// are logged and counted, never surfaced to the request.
//
//	pool := workers.NewPool(workers.ForIO(8), 256)
//	pool.Submit("promote cache/image/ab.webp", func(ctx context.Context) error {
//	    return local.Put(ctx, entry)
//	})
//	defer pool.Shutdown(shutdownCtx)
//
// Shutdown closes the queue and drains it, cancelling task contexts only if
// the drain deadline expires.
package workers
