// Package api serves the demo over HTTP: the connection state, the last
// received message, a publish form and a websocket stream of updates.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts every route of s
func NewRouter(s *Server) chi.Router {
	metrics := s.metrics

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	if s.clients != nil {
		r.Get("/ws", metrics.InstrumentHandler("GET", "/ws", s.handleWebsocket))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limitBody(s.config.MaxBodyBytes))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))
		r.Get("/state", metrics.InstrumentHandler("GET", "/api/v1/state", s.handleState))

		// Messages
		r.Get("/messages/last", metrics.InstrumentHandler("GET", "/api/v1/messages/last", s.handleLastMessage))
		r.Get("/messages", metrics.InstrumentHandler("GET", "/api/v1/messages", s.handleHistory))
		r.Post("/publish", metrics.InstrumentHandler("POST", "/api/v1/publish", s.handlePublish))
		r.Post("/decode", metrics.InstrumentHandler("POST", "/api/v1/decode", s.handleDecode))

		// Connection
		r.Post("/disconnect", metrics.InstrumentHandler("POST", "/api/v1/disconnect", s.handleDisconnect))
	})

	return r
}

// StartServer serves the API until ctx is done, then shuts down gracefully
func StartServer(ctx context.Context, svc SessionService, clients ClientRegistry, metrics *Metrics, config ServerConfig) error {
	server := NewServer(svc, clients, config, metrics)
	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: NewRouter(server),
	}

	logger := slog.Default().With("component", "api")
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
