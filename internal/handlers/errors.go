package handlers

import (
	"context"
	"errors"
	"net/http"

	"media-cdn/internal/logging"
	"media-cdn/internal/media"
	"media-cdn/internal/origin"
	"media-cdn/internal/pipeline"
	"media-cdn/internal/transcoder"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrBadRequest),
		errors.Is(err, pipeline.ErrSourceMismatch),
		errors.Is(err, transcoder.ErrUnsupported),
		errors.Is(err, media.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, origin.ErrNotFound),
		errors.Is(err, media.ErrNonBinary):
		return http.StatusNotFound
	case errors.Is(err, origin.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes the mapped status. Request errors echo their
// message; server errors hide it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logging.Debug("Client went away: %s %s", r.Method, r.URL.Path)
		return
	}

	status := statusFor(err)
	w.Header().Set("Cache-Control", "no-store")

	var rejected *transcoder.RejectedError
	switch {
	case errors.As(err, &rejected):
		logging.Error("Transcode rejected for %s (%s): %s", r.URL.Path, rejected.Preset, rejected.Reason)
		http.Error(w, http.StatusText(status), status)
	case status >= http.StatusInternalServerError:
		logging.Error("Request failed %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, http.StatusText(status), status)
	default:
		logging.Debug("Request rejected %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, err.Error(), status)
	}
}
