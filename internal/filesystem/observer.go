package filesystem

// Observer records filesystem retry metrics. The metrics package provides the
// implementation so that this package does not import it.
type Observer interface {
	ObserveRetryAttempt(op, volume string)
	ObserveRetrySuccess(op, volume string)
	ObserveRetryFailure(op, volume string)
	ObserveRetryDuration(op, volume string, durationSeconds float64)
	ObserveStaleError(op, volume string)
}

var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
// If never called, metric recording is skipped.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
