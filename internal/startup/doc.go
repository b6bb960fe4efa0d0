// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads settings with viper. Environment variables take
// precedence, then a .env file in the working directory, then the YAML file
// named by CONFIG_FILE, then defaults:
//
//   - PORT, METRICS_PORT, METRICS_ENABLED: listeners (8080, 9090, true)
//   - CACHE_DIR: local tier and transcode scratch root (default: /cache)
//   - DATABASE_DIR: origin snapshot database (default: /database)
//   - R2_ENDPOINT, R2_BUCKET, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_REGION:
//     remote cache tier, disabled when endpoint or bucket is empty
//   - ORIGIN_R2_*, ORIGIN_PREFIX: origin bucket holding source media
//   - ORIGIN_REFRESH_INTERVAL, ORIGIN_MAX_AGE: origin map refresh (7m, 10m)
//   - IMAGE_CONCURRENCY, VIDEO_CONCURRENCY, AUDIO_CONCURRENCY: transforms per kind
//   - TRANSCODE_DEVICE (cpu|gpu), VIDEO_QUALITY, AUDIO_QUALITY
//   - IMAGE_ENGINE (vips|imaging)
//   - BACKGROUND_WORKERS, BACKGROUND_QUEUE_SIZE: write-through pool
//   - LOG_HEALTH_CHECKS, LOG_FILE, LOG_MAX_SIZE_MB, LOG_MAX_BACKUPS, LOG_MAX_AGE_DAYS
//
// LOG_LEVEL and the memory limit variables are read by the logging and
// memory packages directly.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
