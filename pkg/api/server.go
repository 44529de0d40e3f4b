// Package api serves an attribute store over HTTP.
//
// All routes live under /api/v1 and answer with an APIResponse envelope.
// When an API key is configured it must be sent in the X-API-Key header.
// /metrics is left unprotected for scraping.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Router returns the HTTP handler for all routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger())
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		// Attribute sets
		r.Post("/attrs", s.metrics.InstrumentHandler("POST", "/api/v1/attrs", s.handleAdd))
		r.Post("/attrs/contains", s.metrics.InstrumentHandler("POST", "/api/v1/attrs/contains", s.handleContains))
		r.Delete("/attrs", s.metrics.InstrumentHandler("DELETE", "/api/v1/attrs", s.handleRemove))
		r.Get("/attrs", s.metrics.InstrumentHandler("GET", "/api/v1/attrs", s.handleList))
		r.Get("/attrs/export", s.metrics.InstrumentHandler("GET", "/api/v1/attrs/export", s.handleExport))

		// Diagnostics
		r.Get("/stats", s.metrics.InstrumentHandler("GET", "/api/v1/stats", s.handleStats))
		r.Get("/hash", s.metrics.InstrumentHandler("GET", "/api/v1/hash", s.handleHash))
	})

	return r
}

// Serve runs the API server until ctx is canceled or the listener fails.
func Serve(ctx context.Context, st IAttrStore, config ServerConfig) error {
	server := NewServer(st, config, NewMetrics())
	srv := &http.Server{
		Addr:              net.JoinHostPort(config.Bind, strconv.Itoa(config.Port)),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("bubo API listening on %s, metrics at /metrics", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		server.updateStats(ctx.Done())
		return nil
	})
	return g.Wait()
}
