package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"media-cdn/internal/logging"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the gzip compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// CompressibleTypes lists the media types worth compressing
	CompressibleTypes []string
	// SkipPrefixes are paths whose responses are passed through untouched
	SkipPrefixes []string
}

// DefaultCompressionConfig compresses JSON and text API responses. Media
// derivatives are already compressed and are never wrapped.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"text/plain",
			"application/json",
			"image/svg+xml",
		},
		SkipPrefixes: []string{"/media/"},
	}
}

// gzipPools holds one *sync.Pool of writers per compression level.
var gzipPools sync.Map

func getGzipWriter(level int, w http.ResponseWriter) *gzip.Writer {
	pool, _ := gzipPools.LoadOrStore(level, &sync.Pool{})
	if zw, ok := pool.(*sync.Pool).Get().(*gzip.Writer); ok {
		zw.Reset(w)
		return zw
	}
	zw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		zw = gzip.NewWriter(w)
	}
	return zw
}

func putGzipWriter(level int, zw *gzip.Writer) {
	if pool, ok := gzipPools.Load(level); ok {
		pool.(*sync.Pool).Put(zw)
	}
}

// gzipResponseWriter buffers up to MinSize bytes, then decides once whether
// the rest of the response is compressed.
type gzipResponseWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	zw         *gzip.Writer
	buffer     []byte
	statusCode int
	decided    bool
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		statusCode:     http.StatusOK,
		buffer:         make([]byte, 0, config.MinSize+1),
	}
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if !g.decided {
		g.statusCode = statusCode
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.zw != nil {
			return g.zw.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) > g.config.MinSize {
		g.decide()
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	mediaType, _, _ := strings.Cut(g.Header().Get("Content-Type"), ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" || g.Header().Get("Content-Encoding") != "" {
		return false
	}
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

// decide writes the status line and flushes the buffered bytes.
func (g *gzipResponseWriter) decide() {
	if g.decided {
		return
	}
	g.decided = true

	if len(g.buffer) >= g.config.MinSize && g.compressible() {
		h := g.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		g.zw = getGzipWriter(g.config.Level, g.ResponseWriter)
	}

	g.ResponseWriter.WriteHeader(g.statusCode)

	var err error
	if g.zw != nil {
		_, err = g.zw.Write(g.buffer)
	} else {
		_, err = g.ResponseWriter.Write(g.buffer)
	}
	if err != nil {
		logging.Debug("response write failed: %v", err)
	}
	g.buffer = nil
}

// Close finalizes the response and returns the gzip writer to its pool.
func (g *gzipResponseWriter) Close() error {
	g.decide()
	if g.zw == nil {
		return nil
	}
	err := g.zw.Close()
	putGzipWriter(g.config.Level, g.zw)
	g.zw = nil
	return err
}

func (g *gzipResponseWriter) Flush() {
	g.decide()
	if g.zw != nil {
		if err := g.zw.Flush(); err != nil {
			logging.Debug("gzip flush failed: %v", err)
		}
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (c CompressionConfig) skip(r *http.Request) bool {
	// Byte ranges address the identity encoding.
	if r.Header.Get("Range") != "" || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return true
	}
	for _, prefix := range c.SkipPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// Compression returns a middleware that gzips eligible responses
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config)
			defer func() {
				if err := gzw.Close(); err != nil {
					logging.Debug("gzip close failed: %v", err)
				}
			}()
			next.ServeHTTP(gzw, r)
		})
	}
}
