package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Images collection.
	mux.HandleFunc("POST /v1/images", s.handleUploadImage)
	mux.HandleFunc("GET /v1/images", s.handleListImages)

	// Single image.
	mux.HandleFunc("GET /v1/images/{filename}", s.handleGetImage)
	mux.HandleFunc("PATCH /v1/images/{filename}", s.handleEditComment)
	mux.HandleFunc("DELETE /v1/images/{filename}", s.handleDeleteImage)

	// Generation.
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)

	// Blob content.
	mux.HandleFunc("GET /v1/blobs/{namespace}/{filename}", s.handleFetchBlob)

	// Maintenance.
	mux.HandleFunc("POST /v1/reset", s.handleReset)
	mux.HandleFunc("POST /v1/admin/sweep", s.handleSweep)

	return mux
}
