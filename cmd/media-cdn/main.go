package main

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-cdn/internal/cache"
	"media-cdn/internal/database"
	"media-cdn/internal/filesystem"
	"media-cdn/internal/handlers"
	"media-cdn/internal/logging"
	"media-cdn/internal/media"
	"media-cdn/internal/mediatypes"
	"media-cdn/internal/memory"
	"media-cdn/internal/metrics"
	"media-cdn/internal/middleware"
	"media-cdn/internal/objectstore"
	"media-cdn/internal/origin"
	"media-cdn/internal/pipeline"
	"media-cdn/internal/scheduler"
	"media-cdn/internal/startup"
	"media-cdn/internal/transcoder"
	"media-cdn/internal/workers"
)

// app holds everything that needs an orderly shutdown.
type app struct {
	server        *http.Server
	metricsServer *http.Server
	scheduler     *scheduler.Scheduler
	pool          *workers.Pool
	resolver      *origin.Resolver
	collector     *metrics.Collector
	monitor       *memory.Monitor
	transcoder    *transcoder.Transcoder
	db            *database.Database
}

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	if err := logging.Configure(config.LogFile); err != nil {
		startup.LogFatal("Failed to open log file: %v", err)
	}

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	memory.ConfigureFromEnv()
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	pool := workers.NewPool(config.BackgroundWorkers, config.BackgroundQueueSize)

	local, err := cache.NewLocalStore(config.LocalCacheDir)
	if err != nil {
		startup.LogFatal("Failed to initialize local cache: %v", err)
	}
	store := cache.NewStore(local, remoteTier(config), pool)
	startup.LogCacheInit(config.LocalCacheDir, remoteBucket(config))

	origins, fetcher, resolver := newOrigins(config, db)
	startup.LogOriginInit(config.Origin.Bucket, config.OriginSchedule())
	if resolver != nil {
		if err := resolver.Start(context.Background()); err != nil {
			startup.LogFatal("Failed to start origin resolver: %v", err)
		}
	}

	engine, fallback := selectEngine(config.ImageEngine)
	startup.LogEngineInit(engine.Name(), fallback)

	device, err := transcoder.ParseDevice(config.TranscodeDevice)
	if err != nil {
		startup.LogFatal("Invalid transcode device: %v", err)
	}
	startup.LogTranscoderInit(string(device))
	trans := transcoder.New(transcoder.NewExecRunner(), transcoder.Config{ScratchDir: config.ScratchDir})
	trans.SetObserver(logProgress)

	sched := scheduler.New()
	svc := pipeline.New(pipeline.Deps{
		Cache:      store,
		Origins:    origins,
		Fetcher:    fetcher,
		Engine:     engine,
		Frames:     media.NewFrameExtractor(),
		Transcoder: trans,
		Scheduler:  sched,
		Usage:      local.Usage,
		Memory:     monitor,
	}, pipeline.Config{
		ImageConcurrency: config.ImageConcurrency,
		VideoConcurrency: config.VideoConcurrency,
		AudioConcurrency: config.AudioConcurrency,
		DefaultDevice:    device,
		VideoQuality:     config.VideoQuality,
		AudioQuality:     config.AudioQuality,
	})

	metrics.InitializeMetrics([]string{
		string(mediatypes.KindImage),
		string(mediatypes.KindVideo),
		string(mediatypes.KindAudio),
	})
	collector := metrics.NewCollector(svc, 30*time.Second)
	collector.Start()

	h := handlers.New(svc)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           buildHandler(router, config.LogHealthChecks),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Transforms and large range responses can run long.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	a := &app{
		server:     srv,
		scheduler:  sched,
		pool:       pool,
		resolver:   resolver,
		collector:  collector,
		monitor:    monitor,
		transcoder: trans,
		db:         db,
	}

	if config.MetricsEnabled {
		a.metricsServer = startMetricsServer(config.MetricsPort)
	}

	go handleShutdown(a)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for the rest.
	<-shutdownDone
	if err := logging.Close(); err != nil {
		logging.Warn("Failed to close log file: %v", err)
	}
}

// remoteTier returns the R2 tier, or nil when it is not configured. The
// result must stay a nil interface so the store runs local-only.
func remoteTier(config *startup.Config) cache.Tier {
	if !config.RemoteCache.Enabled() {
		return nil
	}
	return cache.NewRemoteStore(objectstore.NewClient(config.RemoteCache), config.RemoteCache.Bucket)
}

func remoteBucket(config *startup.Config) string {
	if !config.RemoteCache.Enabled() {
		return ""
	}
	return config.RemoteCache.Bucket
}

// newOrigins returns the resolver and fetcher for the origin bucket. Without
// one, both are origin.Disabled and the returned resolver is nil.
func newOrigins(config *startup.Config, db *database.Database) (pipeline.Origins, pipeline.Fetcher, *origin.Resolver) {
	if !config.Origin.Enabled() {
		return origin.Disabled{}, origin.Disabled{}, nil
	}

	bucket := origin.NewBucket(objectstore.NewClient(config.Origin), config.Origin.Bucket, config.OriginPrefix)
	resolverConfig := origin.DefaultConfig()
	resolverConfig.MaxAge = config.OriginMaxAge
	resolverConfig.Schedule = config.OriginSchedule()

	var snapshots origin.Snapshots
	if db != nil {
		snapshots = db
	}
	resolver := origin.NewResolver(bucket, snapshots, resolverConfig)
	return resolver, bucket, resolver
}

// selectEngine returns the configured image engine, falling back to the
// pure-Go engine when libvips cannot be started.
func selectEngine(name string) (media.Engine, bool) {
	if name == startup.EngineImaging {
		return media.NewImagingEngine(), false
	}
	engine, err := media.NewVipsEngine()
	if err != nil {
		logging.Warn("Failed to initialize libvips: %v", err)
		return media.NewImagingEngine(), true
	}
	return engine, false
}

func logProgress(p transcoder.Progress) {
	if math.IsInf(p.ETA, 0) {
		logging.Debug("Transcode %s: %s %.1f%% (%.1f fps)", p.Name, p.Status, p.Completion, p.FPS)
		return
	}
	logging.Debug("Transcode %s: %s %.1f%% (%.1f fps, eta %.0fs)", p.Name, p.Status, p.Completion, p.FPS, p.ETA)
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	h.Register(r)
	return r
}

// buildHandler wraps the router with the middleware chain. Request ids are
// assigned first so every later layer can log them.
func buildHandler(router http.Handler, logHealthChecks bool) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = logHealthChecks

	handler := middleware.Compression(middleware.DefaultCompressionConfig())(router)
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	return middleware.RequestID(handler)
}

func startMetricsServer(port string) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", handlers.MetricsHandler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

var shutdownDone = make(chan struct{})

func handleShutdown(a *app) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	a.shutdown(30 * time.Second)
	close(shutdownDone)
}

// shutdown stops intake first, then drains in-flight transforms and
// background writes before closing storage.
func (a *app) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := a.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Draining transform scheduler")
	if err := a.scheduler.Shutdown(ctx); err != nil {
		logging.Warn("Scheduler shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Transform scheduler drained")
	}

	startup.LogShutdownStep("Draining background writes")
	if err := a.pool.Shutdown(ctx); err != nil {
		logging.Warn("Background pool shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Background writes drained")
	}

	if a.resolver != nil {
		startup.LogShutdownStep("Stopping origin refresh")
		a.resolver.Stop()
		startup.LogShutdownStepComplete("Origin refresh stopped")
	}

	a.collector.Stop()
	a.monitor.Stop()

	startup.LogShutdownStep("Cleaning up transcoder")
	a.transcoder.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	media.ShutdownVips()

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	if err := a.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
