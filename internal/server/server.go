// Package server exposes the latest and historical snapshots over HTTP:
// JSON endpoints per underlying plus an SSE stream of live updates.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/store"
)

type Server struct {
	latest  *store.Latest
	history *store.History
	stream  *Broadcaster
	logger  *zap.Logger
}

func NewServer(latest *store.Latest, history *store.History, stream *Broadcaster, logger *zap.Logger) *Server {
	return &Server{
		latest:  latest,
		history: history,
		stream:  stream,
		logger:  logger,
	}
}

func NewRouter(server *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/healthz", server.handleHealth)
	r.Get("/underlyings", server.handleUnderlyings)
	r.Get("/gex/{underlying}", server.handleLatest)
	r.Get("/gex/{underlying}/history", server.handleHistory)
	r.Get("/stream", server.stream.HandleSSE)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
			)
			next.ServeHTTP(w, r)
		})
	}
}
