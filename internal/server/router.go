// Package server assembles the HTTP router.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/radif/imagestore/docs/swagger"
	"github.com/radif/imagestore/internal/image"
	appMiddleware "github.com/radif/imagestore/internal/middleware"
	"github.com/radif/imagestore/internal/response"
)

// RouterDeps are the handlers and settings the router is built from.
type RouterDeps struct {
	Images *image.Handler
	// Files serves stored bytes back under FilesPrefix. Nil when the
	// backend hosts files itself.
	Files       image.FileOpener
	FilesPrefix string
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(deps.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	// Swagger UI at /swagger/index.html
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/upload", func(r chi.Router) {
		r.Post("/", deps.Images.Create)
		r.Put("/", deps.Images.Replace)
		r.Delete("/", deps.Images.Delete)
	})

	if deps.Files != nil {
		r.Get(deps.FilesPrefix+"/{name}", deps.Images.ServeFiles(deps.Files))
	}

	return r
}
