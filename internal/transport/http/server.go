package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sandevgo/docqa/pkg/log"
)

// Server wraps the HTTP listener and implements srv.Service.
type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, handler *Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: newRouter(handler),
		},
	}
}

func newRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", handler.Health)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/chat", handler.Chat)
		api.Post("/ingest", handler.Ingest)

		api.Route("/collections", func(c chi.Router) {
			c.Get("/", handler.ListCollections)
			c.Get("/{clientID}/stats", handler.CollectionStats)
			c.Delete("/{clientID}", handler.DeleteCollection)
		})

		api.Route("/sessions", func(s chi.Router) {
			s.Get("/", handler.ListSessions)
			s.Get("/stats", handler.SessionStats)
			s.Post("/cleanup", handler.CleanupSessions)
			s.Get("/{sessionID}/info", handler.SessionInfo)
			s.Delete("/{sessionID}", handler.ClearSession)
		})
	})

	return r
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
