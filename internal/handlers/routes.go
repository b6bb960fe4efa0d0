package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register installs every application route on r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	r.HandleFunc("/media/{kind}/{rest:.*}", h.GetMedia).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cache/burst", h.BurstCache).Methods(http.MethodDelete)
	api.HandleFunc("/transcode/clear", h.ClearTranscodeCache).Methods(http.MethodPost)
}
