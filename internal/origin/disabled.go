package origin

import (
	"context"
	"fmt"

	"media-cdn/internal/metrics"
)

// Disabled stands in for the resolver and bucket when no origin bucket is
// configured. Every lookup fails with ErrUnavailable.
type Disabled struct{}

func (Disabled) Resolve(_ context.Context, id string) (string, error) {
	metrics.OriginResolutionsTotal.WithLabelValues("unavailable").Inc()
	return "", fmt.Errorf("%w: no origin bucket configured for %s", ErrUnavailable, id)
}

// Ready is true so the service still reports ready for cached derivatives.
func (Disabled) Ready() bool { return true }

func (Disabled) Size() int { return 0 }

func (Disabled) Fetch(_ context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("%w: no origin bucket configured for %s", ErrUnavailable, key)
}

func (Disabled) Download(_ context.Context, key, _ string) error {
	return fmt.Errorf("%w: no origin bucket configured for %s", ErrUnavailable, key)
}
