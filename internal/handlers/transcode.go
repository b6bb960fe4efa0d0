package handlers

import (
	"errors"
	"net/http"

	"media-cdn/internal/logging"
	"media-cdn/internal/pipeline"
)

// ClearTranscodeCache removes staged sources and leftover encoder output.
// POST /api/transcode/clear
func (h *Handlers) ClearTranscodeCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	freedBytes, err := h.svc.ClearScratch()
	if errors.Is(err, pipeline.ErrScratchBusy) {
		http.Error(w, "Transcode jobs in progress, try again later", http.StatusConflict)
		return
	}
	if err != nil {
		logging.Error("Failed to clear transcode scratch: %v", err)
		http.Error(w, "Failed to clear transcode cache", http.StatusInternalServerError)
		return
	}

	logging.Info("Transcode scratch cleared, freed %d bytes", freedBytes)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"success":    true,
		"freedBytes": freedBytes,
	})
}
