package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_http_range_requests_total",
			Help: "Range requests by outcome (partial, full, unsatisfiable)",
		},
		[]string{"outcome"},
	)
)

// Cache tier metrics
var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_cache_lookups_total",
			Help: "Cache lookups by tier and result (hit, miss, error)",
		},
		[]string{"tier", "result"},
	)

	CacheLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_cache_lookup_duration_seconds",
			Help:    "Cache lookup duration by tier",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"tier"},
	)

	CacheWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_cache_writes_total",
			Help: "Cache writes by tier and status (success, error)",
		},
		[]string{"tier", "status"},
	)

	CacheWriteBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_cache_write_bytes_total",
			Help: "Bytes written to each cache tier",
		},
		[]string{"tier"},
	)

	CachePromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_cache_promotions_total",
			Help: "Remote to local promotions by status",
		},
		[]string{"status"},
	)

	CacheRemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_cache_removals_total",
			Help: "Cache entries removed by tier",
		},
		[]string{"tier"},
	)

	CacheLocalEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_cache_local_entries",
			Help: "Number of entries in the local cache tier",
		},
	)

	CacheLocalBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_cache_local_size_bytes",
			Help: "Total size of the local cache tier in bytes",
		},
	)
)

// Single-flight scheduler metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_jobs_total",
			Help: "Transform jobs executed by kind and status",
		},
		[]string{"kind", "status"},
	)

	JobsDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_jobs_deduped_total",
			Help: "Requests that attached to an in-flight job instead of starting one",
		},
		[]string{"kind"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_job_duration_seconds",
			Help:    "Transform job duration by kind, excluding queue wait",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	JobQueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_job_queue_wait_seconds",
			Help:    "Time a job waited for its kind's concurrency slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"kind"},
	)

	JobsInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_cdn_jobs_in_progress",
			Help: "Jobs currently executing by kind",
		},
		[]string{"kind"},
	)

	JobsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_cdn_jobs_in_flight",
			Help: "Registered jobs (queued or executing) by kind",
		},
		[]string{"kind"},
	)
)

// Transform engine metrics
var (
	ImageTransformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_image_transforms_total",
			Help: "Image transforms by engine and status",
		},
		[]string{"engine", "status"},
	)

	ImageTransformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_image_transform_duration_seconds",
			Help:    "Image transform duration by engine",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"engine"},
	)

	TranscodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_transcodes_total",
			Help: "Encoder runs by codec, device and status (fulfilled, rejected, unsupported)",
		},
		[]string{"codec", "device", "status"},
	)

	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_transcode_duration_seconds",
			Help:    "Encoder run duration by codec",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"codec"},
	)

	TranscodeFPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_cdn_transcode_fps",
			Help: "Most recent encoder throughput in frames per second",
		},
		[]string{"codec"},
	)

	TranscodeProcessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_transcode_processes_running",
			Help: "Encoder subprocesses currently running",
		},
	)

	FrameCountDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_cdn_frame_count_duration_seconds",
			Help:    "Duration of the frame counting pre-pass",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)
)

// Origin resolver metrics
var (
	OriginRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_origin_refresh_total",
			Help: "Origin mapping refreshes by status",
		},
		[]string{"status"},
	)

	OriginRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_cdn_origin_refresh_duration_seconds",
			Help:    "Origin listing duration",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	OriginMappings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_origin_mappings",
			Help: "Number of media ids in the current origin mapping",
		},
	)

	OriginLastRefreshTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_origin_last_refresh_timestamp",
			Help: "Unix timestamp of the last successful origin refresh",
		},
	)

	OriginResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_origin_resolutions_total",
			Help: "Media id resolutions by result (found, not_found, unavailable)",
		},
		[]string{"result"},
	)
)

// Background work queue metrics
var (
	BackgroundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_background_queue_depth",
			Help: "Background tasks waiting for a worker",
		},
	)

	BackgroundTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_background_tasks_total",
			Help: "Background tasks by status (success, error, dropped)",
		},
		[]string{"status"},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_filesystem_stale_errors_total",
			Help: "Stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retrying filesystem operations",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cdn_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cdn_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes (0 when unset)",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cdn_memory_paused",
			Help: "1 while new transforms are held back for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cdn_memory_gc_pauses_total",
			Help: "Number of times memory pressure forced a GC and paused transforms",
		},
	)
)

// AppInfo exposes build information as labels.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "media_cdn_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
