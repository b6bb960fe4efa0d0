package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(kinds []string) {
	tiers := []string{"local", "remote"}
	for _, tier := range tiers {
		for _, result := range []string{"hit", "miss", "error"} {
			CacheLookupsTotal.WithLabelValues(tier, result)
		}
		CacheLookupDuration.WithLabelValues(tier)
		CacheWritesTotal.WithLabelValues(tier, "success")
		CacheWritesTotal.WithLabelValues(tier, "error")
		CacheWriteBytes.WithLabelValues(tier)
		CacheRemovalsTotal.WithLabelValues(tier)
	}
	for _, status := range []string{"success", "error"} {
		CachePromotionsTotal.WithLabelValues(status)
	}

	for _, kind := range kinds {
		JobsTotal.WithLabelValues(kind, "success")
		JobsTotal.WithLabelValues(kind, "error")
		JobsDedupedTotal.WithLabelValues(kind)
		JobDuration.WithLabelValues(kind)
		JobQueueWait.WithLabelValues(kind)
		JobsInProgress.WithLabelValues(kind)
		JobsInFlight.WithLabelValues(kind)
	}

	for _, outcome := range []string{"partial", "full", "unsatisfiable"} {
		HTTPRangeRequestsTotal.WithLabelValues(outcome)
	}

	for _, result := range []string{"found", "not_found", "unavailable"} {
		OriginResolutionsTotal.WithLabelValues(result)
	}
	for _, status := range []string{"success", "error"} {
		OriginRefreshTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error", "dropped"} {
		BackgroundTasksTotal.WithLabelValues(status)
	}

	for _, op := range []string{"stat", "open", "rename", "remove"} {
		for _, vol := range []string{"cache", "scratch", "database", "unknown"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"initialize_schema", "save_origin_map", "load_origin_map"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
