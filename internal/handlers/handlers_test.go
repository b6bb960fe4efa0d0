package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-cdn/internal/cache"
	"media-cdn/internal/cachekey"
	"media-cdn/internal/mediatypes"
	"media-cdn/internal/modifiers"
	"media-cdn/internal/origin"
	"media-cdn/internal/pipeline"
	"media-cdn/internal/pipeline/pipelinetest"
	"media-cdn/internal/scheduler"
	"media-cdn/internal/transcoder"
	"media-cdn/internal/workers"
)

type testServer struct {
	router     *mux.Router
	local      *cache.LocalStore
	pool       *workers.Pool
	origins    *pipelinetest.Origins
	engine     *pipelinetest.Engine
	transcoder *pipelinetest.Transcoder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	local, err := cache.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	pool := workers.NewPool(2, 16)
	sched := scheduler.New()

	ts := &testServer{
		local: local,
		pool:  pool,
		origins: pipelinetest.NewOrigins(map[string]string{
			"photo1": "u_photo1.jpg",
			"clip":   "v_clip.mp4",
		}),
		engine:     &pipelinetest.Engine{Output: pipelinetest.PNG},
		transcoder: &pipelinetest.Transcoder{Dir: t.TempDir(), Output: []byte(strings.Repeat("v", 5000))},
	}
	svc := pipeline.New(pipeline.Deps{
		Cache:   cache.NewStore(local, nil, pool),
		Origins: ts.origins,
		Fetcher: pipelinetest.NewFetcher(map[string][]byte{
			"u_photo1.jpg": pipelinetest.PNG,
			"v_clip.mp4":   []byte("source"),
		}),
		Engine:     ts.engine,
		Frames:     &pipelinetest.Frames{Frame: pipelinetest.PNG},
		Transcoder: ts.transcoder,
		Scheduler:  sched,
		Usage:      local.Usage,
	}, pipeline.DefaultConfig())

	ts.router = mux.NewRouter()
	New(svc).Register(ts.router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
		_ = pool.Shutdown(ctx)
	})
	return ts
}

func (ts *testServer) do(method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestGetMediaImage(t *testing.T) {
	ts := newTestServer(t)
	accept := map[string]string{"Accept": "image/webp,*/*"}

	w := ts.do(http.MethodGet, "/media/image/w_100,h_50/photo1", accept, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	want := map[string]string{
		"Content-Type":  "image/webp",
		"Cache-Control": "public, max-age=31536000, immutable",
		"Vary":          "Accept",
		"X-Robots-Tag":  "noindex, nofollow, noarchive, nosnippet",
		"X-Cache":       "MISS",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if w.Header().Get("Accept-Ranges") != "" {
		t.Error("Images should not advertise byte ranges")
	}
	if w.Body.String() != string(pipelinetest.PNG) {
		t.Error("Unexpected body")
	}

	ts.pool.Wait()

	w = ts.do(http.MethodGet, "/media/image/h_50,w_100/photo1", accept, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-Cache"); got != "HIT-local" {
		t.Errorf("X-Cache = %q, want HIT-local", got)
	}
	if got := ts.engine.Calls.Load(); got != 1 {
		t.Errorf("Engine calls = %d, want 1", got)
	}
}

func TestGetMediaImageIgnoresRange(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/media/image/w_100/photo1", map[string]string{"Range": "bytes=0-3"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.Len() != len(pipelinetest.PNG) {
		t.Errorf("Expected full body, got %d bytes", w.Body.Len())
	}
}

func TestGetMediaVideoRanges(t *testing.T) {
	tests := []struct {
		name         string
		rangeHeader  string
		wantStatus   int
		wantRange    string
		wantLength   string
		wantBodySize int
	}{
		{"Full entity", "", http.StatusOK, "", "5000", 5000},
		{"Middle slice", "bytes=1000-1999", http.StatusPartialContent, "bytes 1000-1999/5000", "1000", 1000},
		{"Open ended", "bytes=4990-", http.StatusPartialContent, "bytes 4990-4999/5000", "10", 10},
		{"Suffix", "bytes=-100", http.StatusPartialContent, "bytes 4900-4999/5000", "100", 100},
		{"Unsatisfiable", "bytes=6000-", http.StatusRequestedRangeNotSatisfiable, "bytes */5000", "", -1},
	}

	ts := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{"Accept": "video/webm"}
			if tt.rangeHeader != "" {
				headers["Range"] = tt.rangeHeader
			}
			w := ts.do(http.MethodGet, "/media/video/w_640,c_vp9/clip", headers, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if got := w.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantRange)
			}
			if tt.wantBodySize < 0 {
				return
			}
			if got := w.Header().Get("Content-Length"); got != tt.wantLength {
				t.Errorf("Content-Length = %q, want %q", got, tt.wantLength)
			}
			if w.Body.Len() != tt.wantBodySize {
				t.Errorf("Body = %d bytes, want %d", w.Body.Len(), tt.wantBodySize)
			}
			if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
				t.Errorf("Accept-Ranges = %q", got)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "video/webm; codecs=") {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestGetMediaErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		setup      func(ts *testServer)
		wantStatus int
	}{
		{"Missing id", "/media/image/w_100/", nil, http.StatusBadRequest},
		{"Empty path", "/media/image/", nil, http.StatusBadRequest},
		{"Unknown kind", "/media/document/w_100/photo1", nil, http.StatusBadRequest},
		{"Unsupported codec and device", "/media/video/c_vp9,d_gpu/clip", nil, http.StatusBadRequest},
		{"Missing modifier segment", "/media/image/photo1", nil, http.StatusBadRequest},
		{"Video of a still image", "/media/video/_/photo1", nil, http.StatusBadRequest},
		{"Unknown media id", "/media/image/w_100/nope", nil, http.StatusNotFound},
		{"Non-binary engine output", "/media/image/w_100/photo1", func(ts *testServer) {
			ts.engine.Output = []byte("<html>error page</html>")
		}, http.StatusNotFound},
		{"Origin unavailable", "/media/image/w_100/photo1", func(ts *testServer) {
			ts.origins.Err = origin.ErrUnavailable
		}, http.StatusBadGateway},
		{"Transcode rejected", "/media/video/c_avc/clip", func(ts *testServer) {
			ts.transcoder.Outcome = transcoder.Outcome{Status: transcoder.StatusRejected, Preset: "avc-480p-landscape", Reason: "Conversion failed!"}
		}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts)
			}

			w := ts.do(http.MethodGet, tt.path, nil, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := w.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
			if got := w.Header().Get("X-Robots-Tag"); got == "" {
				t.Error("X-Robots-Tag missing on error response")
			}
		})
	}
}

func TestGetMediaHead(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodHead, "/media/video/c_vp9/clip", map[string]string{"Accept": "video/webm"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Length") != "5000" {
		t.Errorf("Content-Length = %q", w.Header().Get("Content-Length"))
	}
	if w.Body.Len() != 0 {
		t.Errorf("HEAD returned %d body bytes", w.Body.Len())
	}
}

func TestBurstCache(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	set := modifiers.Parse("w_10").Resolve("image", "")
	key := cachekey.ForRequest(mediatypes.KindImage, "photo1", set)
	if err := ts.local.Put(ctx, &cache.Entry{Key: key, ContentType: "image/jpeg", Data: pipelinetest.PNG}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantRemoved float64
	}{
		{"Malformed body", `{"key":"x"}`, http.StatusBadRequest, 0},
		{"Empty list", `[]`, http.StatusBadRequest, 0},
		{"Invalid key", `["../../etc/passwd"]`, http.StatusBadRequest, 0},
		{"Valid key", `["` + key + `"]`, http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodDelete, "/api/cache/burst", nil, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}

			var resp map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp["status"] != "OK" || resp["removed"] != tt.wantRemoved {
				t.Errorf("Unexpected response: %v", resp)
			}
		})
	}

	if ok, _ := ts.local.Has(ctx, key); ok {
		t.Error("Key still present after burst")
	}
}

func TestBurstCacheMethod(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/cache/burst", nil, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestClearTranscodeCache(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(http.MethodGet, "/media/video/c_vp9/clip", map[string]string{"Accept": "video/webm"}, ""); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w := ts.do(http.MethodPost, "/api/transcode/clear", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Success    bool  `json:"success"`
		FreedBytes int64 `json:"freedBytes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.FreedBytes == 0 {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestClearTranscodeCacheDuringEncode(t *testing.T) {
	ts := newTestServer(t)
	ts.transcoder.Release = make(chan struct{})

	done := make(chan int, 1)
	go func() {
		w := ts.do(http.MethodGet, "/media/video/c_vp9/clip", map[string]string{"Accept": "video/webm"}, "")
		done <- w.Code
	}()

	deadline := time.Now().Add(5 * time.Second)
	for ts.transcoder.Calls() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("transcode did not start")
		}
		time.Sleep(time.Millisecond)
	}

	if w := ts.do(http.MethodPost, "/api/transcode/clear", nil, ""); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	close(ts.transcoder.Release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("Expected media status 200, got %d", code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ready      bool
		wantStatus int
		wantField  string
		wantValue  interface{}
	}{
		{"Healthy", "/healthz", true, http.StatusOK, "status", "healthy"},
		{"Starting", "/healthz", false, http.StatusServiceUnavailable, "status", "starting"},
		{"Mappings reported", "/healthz", true, http.StatusOK, "originMappings", float64(2)},
		{"Ready", "/readyz", true, http.StatusOK, "status", "ready"},
		{"Not ready", "/readyz", false, http.StatusServiceUnavailable, "status", "not_ready"},
		{"Alive", "/livez", false, http.StatusOK, "status", "alive"},
		{"Version", "/version", true, http.StatusOK, "version", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if !tt.ready {
				ts.origins.Err = origin.ErrUnavailable
			}

			w := ts.do(http.MethodGet, tt.path, nil, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp[tt.wantField] != tt.wantValue {
				t.Errorf("%s = %v, want %v", tt.wantField, resp[tt.wantField], tt.wantValue)
			}
		})
	}
}

func TestSplitMediaPath(t *testing.T) {
	tests := []struct {
		rest, args, id string
		wantErr        bool
	}{
		{rest: "w_100,h_50/abc", args: "w_100,h_50", id: "abc"},
		{rest: "_/abc", args: "_", id: "abc"},
		{rest: "a/b/c", args: "a", id: "b"},
		{rest: "abc", wantErr: true},
		{rest: "w_100/", wantErr: true},
		{rest: "/abc", wantErr: true},
		{rest: "", wantErr: true},
	}
	for _, tt := range tests {
		args, id, err := splitMediaPath(tt.rest)
		if tt.wantErr {
			if !errors.Is(err, pipeline.ErrBadRequest) {
				t.Errorf("splitMediaPath(%q) error = %v, want ErrBadRequest", tt.rest, err)
			}
			continue
		}
		if err != nil || args != tt.args || id != tt.id {
			t.Errorf("splitMediaPath(%q) = (%q, %q, %v), want (%q, %q)", tt.rest, args, id, err, tt.args, tt.id)
		}
	}
}
