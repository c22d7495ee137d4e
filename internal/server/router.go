// Package server assembles the HTTP router for the storage gateway.
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/bimbel/storagegw/internal/config"
	appMiddleware "github.com/bimbel/storagegw/internal/middleware"
	"github.com/bimbel/storagegw/internal/objects"
	"github.com/bimbel/storagegw/internal/storage"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config *config.Config
	Store  storage.Storage
	// Ledger may be nil when no database is configured.
	Ledger objects.Recorder
	Logger zerolog.Logger
}

// NewRouter builds the gateway's HTTP handler.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config

	// Wire dependencies: store → service → handler
	objSvc := objects.NewService(d.Store, d.Ledger, cfg.PresignTTL, d.Logger)
	objHandler := objects.NewHandler(objSvc, cfg.UploadMaxBytes, d.Logger)
	limiter := appMiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(d.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Range", "X-Request-ID"},
		ExposedHeaders: []string{"Accept-Ranges", "Content-Length", "Content-Range", "ETag"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI, available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// The memory driver answers its own presigned URLs, for minted keys only.
	if mem, ok := d.Store.(*storage.MemoryStorage); ok {
		r.Mount(config.MemstorePath, http.StripPrefix(config.MemstorePath, namespaceOnly(mem)))
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/storage", func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))

			r.Get("/stream", objHandler.Stream)
			r.Head("/stream", objHandler.StreamHead)
			r.Get("/objects", objHandler.List)

			r.Group(func(r chi.Router) {
				r.Use(limiter.PerUser)
				r.Post("/presign", objHandler.Presign)
				r.Post("/confirm", objHandler.Confirm)
				r.Post("/upload", objHandler.Upload)
				r.Delete("/object", objHandler.Delete)
			})
		})
	})

	return r
}

// namespaceOnly keeps the memory driver's unauthenticated endpoint from
// reaching keys outside objects.Namespace.
func namespaceOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !objects.InNamespace(strings.TrimPrefix(r.URL.Path, "/")) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
