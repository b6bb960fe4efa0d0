package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		size   int64
		want   *ByteRange
		err    error
	}{
		{"", 100, nil, nil},
		{"bytes=0-9", 100, &ByteRange{0, 9}, nil},
		{"bytes=1000-1999", 5000, &ByteRange{1000, 1999}, nil},
		{"bytes=90-", 100, &ByteRange{90, 99}, nil},
		{"bytes=90-500", 100, &ByteRange{90, 99}, nil},
		{"bytes=-10", 100, &ByteRange{90, 99}, nil},
		{"bytes=-500", 100, &ByteRange{0, 99}, nil},
		{"bytes=100-", 100, nil, ErrUnsatisfiable},
		{"bytes=-0", 100, nil, ErrUnsatisfiable},
		{"bytes=5-1", 100, nil, nil},
		{"bytes=0-1,5-6", 100, nil, nil},
		{"items=0-1", 100, nil, nil},
		{"bytes=abc-", 100, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %+v, want nil", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("got %v, want %+v", got, *tt.want)
			}
		})
	}
}

func entity(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func serve(t *testing.T, method, rangeHeader string, body []byte, allowRange bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/media/video/_/clip", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	if err := Serve(context.Background(), rec, req, bytes.NewReader(body), int64(len(body)), allowRange, DefaultWriterConfig()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	return rec
}

func TestServePartial(t *testing.T) {
	body := entity(5000)
	rec := serve(t, http.MethodGet, "bytes=1000-1999", body, true)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 1000-1999/5000" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), body[1000:2000]) {
		t.Errorf("body is not the requested slice (len %d)", rec.Body.Len())
	}
}

func TestServeFull(t *testing.T) {
	body := entity(3000)
	rec := serve(t, http.MethodGet, "", body, true)

	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), body) {
		t.Errorf("status = %d, body len = %d", rec.Code, rec.Body.Len())
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Error("missing Accept-Ranges")
	}
}

func TestServeRangeDisabled(t *testing.T) {
	body := entity(100)
	rec := serve(t, http.MethodGet, "bytes=0-9", body, false)

	if rec.Code != http.StatusOK || rec.Body.Len() != 100 {
		t.Errorf("status = %d, body len = %d", rec.Code, rec.Body.Len())
	}
	if rec.Header().Get("Accept-Ranges") != "" {
		t.Error("Accept-Ranges should not be advertised")
	}
}

func TestServeUnsatisfiable(t *testing.T) {
	rec := serve(t, http.MethodGet, "bytes=6000-", entity(5000), true)

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */5000" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestServeHead(t *testing.T) {
	rec := serve(t, http.MethodHead, "bytes=0-99", entity(500), true)

	if rec.Code != http.StatusPartialContent || rec.Body.Len() != 0 {
		t.Errorf("status = %d, body len = %d", rec.Code, rec.Body.Len())
	}
	if rec.Header().Get("Content-Length") != "100" {
		t.Errorf("Content-Length = %q", rec.Header().Get("Content-Length"))
	}
}
