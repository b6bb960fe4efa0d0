package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"media-cdn/internal/metrics"
)

// ErrUnsatisfiable means the requested range starts beyond the entity.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// ByteRange is an inclusive byte range.
type ByteRange struct {
	Start int64
	End   int64
}

// Length is the number of bytes in the range.
func (b ByteRange) Length() int64 {
	return b.End - b.Start + 1
}

// ContentRange formats the Content-Range header value.
func (b ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.Start, b.End, total)
}

// ParseRange parses a single "bytes=" range against an entity of size bytes.
// It returns nil without error when the header is absent, malformed or asks
// for several ranges; the caller then serves the whole entity. An end beyond
// the entity is clamped to its last byte.
func ParseRange(header string, size int64) (*ByteRange, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || spec == "" || strings.Contains(spec, ",") {
		return nil, nil
	}

	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix range: the final N bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return nil, nil
		}
		if n <= 0 || size == 0 {
			return nil, ErrUnsatisfiable
		}
		return &ByteRange{Start: max(0, size-n), End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	if start >= size {
		return nil, ErrUnsatisfiable
	}

	end := size - 1
	if last != "" {
		e, err := strconv.ParseInt(last, 10, 64)
		if err != nil || e < start {
			return nil, nil
		}
		end = min(e, size-1)
	}
	return &ByteRange{Start: start, End: end}, nil
}

// Serve writes body to w, honoring a Range header when allowRange is set.
// Content-Type and caching headers are the caller's. HEAD requests get
// headers only.
func Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, body io.ReadSeeker, size int64, allowRange bool, config WriterConfig) error {
	h := w.Header()
	status := http.StatusOK
	length := size

	if allowRange {
		h.Set("Accept-Ranges", "bytes")

		if header := r.Header.Get("Range"); header != "" {
			rng, err := ParseRange(header, size)
			switch {
			case errors.Is(err, ErrUnsatisfiable):
				metrics.HTTPRangeRequestsTotal.WithLabelValues("unsatisfiable").Inc()
				h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
				h.Del("Cache-Control")
				http.Error(w, "Requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
				return nil
			case rng == nil:
				metrics.HTTPRangeRequestsTotal.WithLabelValues("ignored").Inc()
			default:
				metrics.HTTPRangeRequestsTotal.WithLabelValues("partial").Inc()
				if _, err := body.Seek(rng.Start, io.SeekStart); err != nil {
					return fmt.Errorf("seek to %d: %w", rng.Start, err)
				}
				status = http.StatusPartialContent
				length = rng.Length()
				h.Set("Content-Range", rng.ContentRange(size))
			}
		}
	}

	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}

	_, err := CopyWithTimeout(ctx, w, io.LimitReader(body, length), config)
	return err
}
