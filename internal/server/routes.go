package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/mediaconv/internal/storage"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// FilesDir, when set, is served under storage.FilesPrefix so locally
	// published GIFs and archives can be downloaded.
	FilesDir string
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions/{sid}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{sid}", h.DeleteSession)

	// Video to GIF
	mux.HandleFunc("POST /sessions/{sid}/video", h.UploadVideo)
	mux.HandleFunc("GET /sessions/{sid}/video", h.GetVideo)
	mux.HandleFunc("DELETE /sessions/{sid}/video", h.DeleteVideo)
	mux.HandleFunc("PUT /sessions/{sid}/video/window", h.UpdateWindow)
	mux.HandleFunc("POST /sessions/{sid}/gif", h.CreateGIF)
	mux.HandleFunc("GET /sessions/{sid}/jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /jobs/{id}/gif", h.DownloadGIF)
	mux.HandleFunc("DELETE /jobs/{id}", h.DeleteJob)

	// Batch images
	mux.HandleFunc("POST /sessions/{sid}/images", h.UploadImages)
	mux.HandleFunc("GET /sessions/{sid}/images", h.ListImages)
	mux.HandleFunc("DELETE /sessions/{sid}/images", h.ClearImages)
	mux.HandleFunc("DELETE /sessions/{sid}/images/{id}", h.DeleteImage)
	mux.HandleFunc("POST /sessions/{sid}/images/convert", h.ConvertImages)
	mux.HandleFunc("POST /sessions/{sid}/images/{id}/convert", h.ConvertImage)
	mux.HandleFunc("GET /sessions/{sid}/results", h.ListResults)
	mux.HandleFunc("GET /sessions/{sid}/results/{id}/download", h.DownloadResult)
	mux.HandleFunc("DELETE /sessions/{sid}/results/{id}", h.DeleteResult)
	mux.HandleFunc("POST /sessions/{sid}/results/export", h.ExportResults)

	if cfg.FilesDir != "" {
		mux.Handle("GET "+storage.FilesPrefix, http.StripPrefix(storage.FilesPrefix, http.FileServer(http.Dir(cfg.FilesDir))))
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
