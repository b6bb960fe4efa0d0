package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"media-cdn/internal/logging"
	"media-cdn/internal/objectstore"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Image engines selectable with IMAGE_ENGINE.
const (
	EngineVips    = "vips"
	EngineImaging = "imaging"
)

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool

	CacheDir    string
	DatabaseDir string

	// Derived paths
	LocalCacheDir string
	ScratchDir    string
	DatabasePath  string

	// RemoteCache is the optional remote tier. Origin is the source bucket.
	RemoteCache  objectstore.Config
	Origin       objectstore.Config
	OriginPrefix string

	OriginRefreshInterval time.Duration
	OriginMaxAge          time.Duration

	ImageConcurrency int
	VideoConcurrency int
	AudioConcurrency int
	TranscodeDevice  string
	VideoQuality     int
	AudioQuality     int
	ImageEngine      string

	BackgroundWorkers   int
	BackgroundQueueSize int

	LogHealthChecks bool
	LogFile         logging.FileConfig
}

// OriginSchedule returns the cron spec for periodic origin refreshes.
func (c *Config) OriginSchedule() string {
	if c.OriginRefreshInterval <= 0 {
		return ""
	}
	return "@every " + c.OriginRefreshInterval.String()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("metrics_port", "9090")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("cache_dir", "/cache")
	v.SetDefault("database_dir", "/database")
	v.SetDefault("r2_region", "auto")
	v.SetDefault("origin_r2_region", "auto")
	v.SetDefault("origin_refresh_interval", "7m")
	v.SetDefault("origin_max_age", "10m")
	v.SetDefault("image_concurrency", 1)
	v.SetDefault("video_concurrency", 1)
	v.SetDefault("audio_concurrency", 1)
	v.SetDefault("transcode_device", "cpu")
	v.SetDefault("video_quality", 60)
	v.SetDefault("audio_quality", 60)
	v.SetDefault("image_engine", EngineVips)
	v.SetDefault("background_workers", 4)
	v.SetDefault("background_queue_size", 256)
	v.SetDefault("log_health_checks", true)
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)
}

// keys lists every setting so environment variables are picked up even
// without a default or config file entry.
var keys = []string{
	"port", "metrics_port", "metrics_enabled", "cache_dir", "database_dir",
	"r2_endpoint", "r2_bucket", "r2_access_key_id", "r2_secret_access_key", "r2_region",
	"origin_r2_endpoint", "origin_r2_bucket", "origin_r2_access_key_id",
	"origin_r2_secret_access_key", "origin_r2_region", "origin_prefix",
	"origin_refresh_interval", "origin_max_age",
	"image_concurrency", "video_concurrency", "audio_concurrency",
	"transcode_device", "video_quality", "audio_quality", "image_engine",
	"background_workers", "background_queue_size",
	"log_health_checks", "log_file", "log_max_size_mb", "log_max_backups", "log_max_age_days",
}

// LoadConfig loads and validates configuration. Values come from the
// environment, then an optional .env file, then an optional YAML file named
// by CONFIG_FILE, then defaults.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if err := godotenv.Load(); err == nil {
		logging.Info("  Loaded .env file")
	} else if !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("  Failed to load .env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		logging.Info("  Config file:         %s", v.ConfigFileUsed())
	}

	config, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	for _, dir := range []struct{ path, name string }{
		{config.DatabaseDir, "database"},
		{config.LocalCacheDir, "local cache"},
		{config.ScratchDir, "transcode scratch"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable: %s", dir.name, dir.path)
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Remote cache tier: %s", enabledString(config.RemoteCache.Enabled()))
	logging.Info("    Origin bucket:     %s", enabledString(config.Origin.Enabled()))
	logging.Info("    Metrics:           %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cacheDir, err := filepath.Abs(v.GetString("cache_dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	databaseDir, err := filepath.Abs(v.GetString("database_dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	config := &Config{
		Port:           v.GetString("port"),
		MetricsPort:    v.GetString("metrics_port"),
		MetricsEnabled: v.GetBool("metrics_enabled"),
		CacheDir:       cacheDir,
		DatabaseDir:    databaseDir,
		LocalCacheDir:  filepath.Join(cacheDir, "derivatives"),
		ScratchDir:     filepath.Join(cacheDir, "scratch"),
		DatabasePath:   filepath.Join(databaseDir, "media-cdn.db"),
		RemoteCache: objectstore.Config{
			Endpoint:        v.GetString("r2_endpoint"),
			Region:          v.GetString("r2_region"),
			Bucket:          v.GetString("r2_bucket"),
			AccessKeyID:     v.GetString("r2_access_key_id"),
			SecretAccessKey: v.GetString("r2_secret_access_key"),
		},
		Origin: objectstore.Config{
			Endpoint:        v.GetString("origin_r2_endpoint"),
			Region:          v.GetString("origin_r2_region"),
			Bucket:          v.GetString("origin_r2_bucket"),
			AccessKeyID:     v.GetString("origin_r2_access_key_id"),
			SecretAccessKey: v.GetString("origin_r2_secret_access_key"),
		},
		OriginPrefix:          v.GetString("origin_prefix"),
		OriginRefreshInterval: durationOr(v, "origin_refresh_interval", 7*time.Minute),
		OriginMaxAge:          durationOr(v, "origin_max_age", 10*time.Minute),
		ImageConcurrency:      atLeastOne(v, "image_concurrency"),
		VideoConcurrency:      atLeastOne(v, "video_concurrency"),
		AudioConcurrency:      atLeastOne(v, "audio_concurrency"),
		TranscodeDevice:       oneOf(v, "transcode_device", "cpu", "gpu"),
		VideoQuality:          qualityOr(v, "video_quality", 60),
		AudioQuality:          qualityOr(v, "audio_quality", 60),
		ImageEngine:           oneOf(v, "image_engine", EngineVips, EngineImaging),
		BackgroundWorkers:     atLeastOne(v, "background_workers"),
		BackgroundQueueSize:   atLeastOne(v, "background_queue_size"),
		LogHealthChecks:       v.GetBool("log_health_checks"),
		LogFile: logging.FileConfig{
			Path:       v.GetString("log_file"),
			MaxSizeMB:  v.GetInt("log_max_size_mb"),
			MaxBackups: v.GetInt("log_max_backups"),
			MaxAgeDays: v.GetInt("log_max_age_days"),
		},
	}

	if config.Port == config.MetricsPort && config.MetricsEnabled {
		return nil, fmt.Errorf("PORT and METRICS_PORT must differ (both %s)", config.Port)
	}
	return config, nil
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d < 0 {
		logging.Warn("  Invalid %s %q, using default: %v", strings.ToUpper(key), v.GetString(key), def)
		return def
	}
	return d
}

func atLeastOne(v *viper.Viper, key string) int {
	n := v.GetInt(key)
	if n < 1 {
		logging.Warn("  %s must be at least 1, got %q", strings.ToUpper(key), v.GetString(key))
		return 1
	}
	return n
}

func qualityOr(v *viper.Viper, key string, def int) int {
	q := v.GetInt(key)
	if q < 0 || q > 100 {
		logging.Warn("  %s must be 0-100, using default: %d", strings.ToUpper(key), def)
		return def
	}
	return q
}

// oneOf returns the lowercased value of key if it is allowed, else the first
// allowed value.
func oneOf(v *viper.Viper, key string, allowed ...string) string {
	value := strings.ToLower(strings.TrimSpace(v.GetString(key)))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	logging.Warn("  Invalid %s %q, using default: %s", strings.ToUpper(key), value, allowed[0])
	return allowed[0]
}

func logConfig(c *Config) {
	logging.Info("  PORT:                    %s", c.Port)
	logging.Info("  METRICS_PORT:            %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:         %v", c.MetricsEnabled)
	logging.Info("  CACHE_DIR:               %s", c.CacheDir)
	logging.Info("  DATABASE_DIR:            %s", c.DatabaseDir)
	logging.Info("  R2_BUCKET:               %s", orUnset(c.RemoteCache.Bucket))
	logging.Info("  R2_ENDPOINT:             %s", orUnset(c.RemoteCache.Endpoint))
	logging.Info("  ORIGIN_R2_BUCKET:        %s", orUnset(c.Origin.Bucket))
	logging.Info("  ORIGIN_R2_ENDPOINT:      %s", orUnset(c.Origin.Endpoint))
	logging.Info("  ORIGIN_REFRESH_INTERVAL: %v", c.OriginRefreshInterval)
	logging.Info("  ORIGIN_MAX_AGE:          %v", c.OriginMaxAge)
	logging.Info("  IMAGE_ENGINE:            %s", c.ImageEngine)
	logging.Info("  IMAGE_CONCURRENCY:       %d", c.ImageConcurrency)
	logging.Info("  VIDEO_CONCURRENCY:       %d", c.VideoConcurrency)
	logging.Info("  AUDIO_CONCURRENCY:       %d", c.AudioConcurrency)
	logging.Info("  TRANSCODE_DEVICE:        %s", c.TranscodeDevice)
	logging.Info("  VIDEO_QUALITY:           %d", c.VideoQuality)
	logging.Info("  AUDIO_QUALITY:           %d", c.AudioQuality)
	logging.Info("  BACKGROUND_WORKERS:      %d", c.BackgroundWorkers)
	logging.Info("  BACKGROUND_QUEUE_SIZE:   %d", c.BackgroundQueueSize)
	logging.Info("  LOG_HEALTH_CHECKS:       %v", c.LogHealthChecks)
	logging.Info("  LOG_FILE:                %s", orUnset(c.LogFile.Path))
	logging.Info("  LOG_LEVEL:               %s", logging.GetLevel())
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogCacheInit logs the configured cache tiers
func LogCacheInit(localDir, remoteBucket string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CACHE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Local tier:  %s", localDir)
	if remoteBucket != "" {
		logging.Info("  Remote tier: %s", remoteBucket)
	} else {
		logging.Info("  Remote tier: DISABLED (set R2_ENDPOINT and R2_BUCKET to enable)")
	}
}

// LogEngineInit logs the selected image engine
func LogEngineInit(name string, fallback bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("IMAGE ENGINE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if fallback {
		logging.Warn("  libvips unavailable, falling back to %s engine", name)
		logging.Warn("  webp and avif output will be rejected")
		return
	}
	logging.Info("  [OK] Using %s engine", name)
}

// LogTranscoderInit logs transcoder initialization and checks FFmpeg
func LogTranscoderInit(device string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Default device: %s", device)

	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if err := checkBinary(bin); err != nil {
			logging.Warn("  %s check failed: %v", bin, err)
			logging.Warn("  Video and audio derivatives will fail")
		} else {
			logging.Info("  [OK] %s is available", bin)
		}
	}
}

// LogOriginInit logs origin resolver initialization
func LogOriginInit(bucket, schedule string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("ORIGIN RESOLVER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if bucket == "" {
		logging.Warn("  No origin bucket configured; media requests will fail with 502")
		return
	}
	logging.Info("  Bucket:   %s", bucket)
	logging.Info("  Schedule: %s", orUnset(schedule))
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Subrouter prefixes have no methods
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		return "api/" + parts[1]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Media:         http://0.0.0.0:%s/media/{kind}/{args}/{id}", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___          __________  _   __
   /  |/  /__  ____/ (_)___ _   / ____/ __ \/ | / /
  / /|_/ / _ \/ __  / / __ '/  / /   / / / /  |/ /
 / /  / /  __/ /_/ / / /_/ /  / /___/ /_/ / /|  /
/_/  /_/\___/\__,_/_/\__,_/   \____/_____/_/ |_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkBinary(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", name, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, name, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}
	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s version: %s", name, strings.TrimSpace(line))
	}
	return nil
}
