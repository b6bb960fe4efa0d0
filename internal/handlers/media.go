package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"media-cdn/internal/logging"
	"media-cdn/internal/mediatypes"
	"media-cdn/internal/pipeline"
	"media-cdn/internal/streaming"
)

const (
	robotsTag         = "noindex, nofollow, noarchive, nosnippet"
	immutableCaching  = "public, max-age=31536000, immutable"
	cacheStatusHeader = "X-Cache"
)

// GetMedia serves a derivative.
// GET /media/{kind}/{args}/{id}
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	w.Header().Set("X-Robots-Tag", robotsTag)

	args, id, err := splitMediaPath(vars["rest"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Get(r.Context(), pipeline.Request{
		Kind:    vars["kind"],
		Args:    args,
		MediaID: id,
		Accept:  r.Header.Get("Accept"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer res.Object.Body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", res.Object.ContentType)
	hdr.Set("Cache-Control", immutableCaching)
	hdr.Set("Vary", "Accept")
	hdr.Set(cacheStatusHeader, cacheStatus(res.Object.Tier))

	// Byte ranges are served for timed media only.
	allowRange := res.Kind == mediatypes.KindVideo || res.Kind == mediatypes.KindAudio
	if err := streaming.Serve(r.Context(), w, r, res.Object.Body, res.Object.Size, allowRange, h.stream); err != nil {
		logging.Debug("Stream of %s ended early: %v", res.Key, err)
	}
}

// splitMediaPath splits "<args>/<id>". Both segments are required; "_" is
// the explicit no-modifier token. Segments after the id are ignored.
func splitMediaPath(rest string) (args, id string, err error) {
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: expected /media/{kind}/{args}/{id}", pipeline.ErrBadRequest)
	}
	return parts[0], parts[1], nil
}

func cacheStatus(tier string) string {
	switch tier {
	case "", "fresh":
		return "MISS"
	default:
		return "HIT-" + tier
	}
}
