package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"media-cdn/internal/logging"
	"media-cdn/internal/pipeline"
)

// maxBurstBody bounds the key list accepted by BurstCache.
const maxBurstBody = 1 << 20

// BurstCache removes cache keys from every tier.
// DELETE /api/cache/burst with a JSON array of keys.
func (h *Handlers) BurstCache(w http.ResponseWriter, r *http.Request) {
	var keys []string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBurstBody)).Decode(&keys); err != nil {
		writeJSONError(w, "Body must be a JSON array of cache keys", http.StatusBadRequest)
		return
	}
	if len(keys) == 0 {
		writeJSONError(w, "No cache keys given", http.StatusBadRequest)
		return
	}

	removed, err := h.svc.Burst(r.Context(), keys)
	if errors.Is(err, pipeline.ErrBadRequest) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.Error("Cache burst partially failed (%d/%d removed): %v", removed, len(keys), err)
		writeJSONError(w, "Failed to remove some cache keys", http.StatusInternalServerError)
		return
	}

	logging.Info("Cache burst removed %d keys", removed)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"status":  "OK",
		"removed": removed,
	})
}
