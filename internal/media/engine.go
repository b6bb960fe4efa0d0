package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"media-cdn/internal/logging"
	"media-cdn/internal/mediatypes"
	"media-cdn/internal/metrics"
)

var (
	// ErrNonBinary means the source or the engine output was text, not image data.
	ErrNonBinary = errors.New("non-binary image data")
	// ErrUnsupportedFormat means the engine cannot encode the requested format.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Result is an encoded derivative.
type Result struct {
	Data        []byte
	ContentType string
}

// Engine decodes, transforms and re-encodes an image held in memory.
type Engine interface {
	Name() string
	Transform(ctx context.Context, src []byte, opts Options) ([]byte, error)
}

// Transform runs engine over src and classifies the outcome. Both the source
// and the output must look like binary data, otherwise ErrNonBinary is
// returned.
func Transform(ctx context.Context, engine Engine, src []byte, opts Options) (*Result, error) {
	if err := checkBinary(src); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	if opts.Format == "" || opts.Format == "jpg" {
		opts.Format = "jpeg"
	}

	start := time.Now()
	data, err := engine.Transform(ctx, src, opts)
	metrics.ImageTransformDuration.WithLabelValues(engine.Name()).Observe(time.Since(start).Seconds())
	if err == nil {
		err = checkBinary(data)
	}
	if err != nil {
		metrics.ImageTransformsTotal.WithLabelValues(engine.Name(), "error").Inc()
		return nil, err
	}

	metrics.ImageTransformsTotal.WithLabelValues(engine.Name(), "success").Inc()
	logging.Debug("Image transform via %s: %d -> %d bytes (%s %dx%d fit=%s q=%d)",
		engine.Name(), len(src), len(data), opts.Format, opts.Width, opts.Height, opts.Fit, opts.Quality)

	return &Result{
		Data:        data,
		ContentType: mediatypes.ImageContentType(opts.Format),
	}, nil
}

func checkBinary(data []byte) error {
	if len(data) == 0 {
		return ErrNonBinary
	}
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "text/") || strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: detected %s", ErrNonBinary, ct)
	}
	return nil
}
