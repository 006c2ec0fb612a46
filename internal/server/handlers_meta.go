package server

import (
	"net/http"

	"reimagine/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Provider: s.gallery.ProviderName()})
}
