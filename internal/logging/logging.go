package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	fileMu   sync.Mutex
	fileSink *lumberjack.Logger
)

// FileConfig configures the optional rotating log file.
type FileConfig struct {
	// Path is the log file location. Empty disables file output.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = levelFromEnv(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
	})
}

// levelFromEnv resolves DEBUG and LOG_LEVEL values into a level.
// A truthy DEBUG always wins.
func levelFromEnv(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Configure duplicates log output into a size-rotated file when cfg.Path is set.
// Calling it again replaces the previous file sink.
func Configure(cfg FileConfig) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if fileSink != nil {
		if err := fileSink.Close(); err != nil {
			log.Printf("[WARN] failed to close previous log file: %v", err)
		}
		fileSink = nil
	}

	if cfg.Path == "" {
		log.SetOutput(os.Stderr)
		return nil
	}

	if err := os.MkdirAll(dirOf(cfg.Path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	fileSink = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 14),
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, fileSink))
	return nil
}

// Close flushes and closes the rotating file sink, if any.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	log.SetOutput(os.Stderr)
	return err
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func dirOf(path string) string {
	if idx := strings.LastIndex(path, string(os.PathSeparator)); idx > 0 {
		return path[:idx]
	}
	return "."
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
