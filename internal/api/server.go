// Package api serves the persistence contract over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"arborescence/internal/model"
	"arborescence/internal/remote"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Backend is what the API persists through (store.Store in production).
type Backend interface {
	remote.Remote
	remote.Mover
	remote.Classifier
	ListRefs(ctx context.Context, nodeID string) ([]model.Ref, error)
	Ping(ctx context.Context) error
	ID(ctx context.Context) (string, error)
}

// TreeCache caches the listTree payload (cache.SnapshotCache).
type TreeCache interface {
	Get(ctx context.Context) ([]model.Node, bool, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, gen int64, nodes []model.Node) (bool, error)
	Invalidate(ctx context.Context) error
}

// Server is the HTTP API of the persistence service.
type Server struct {
	router  chi.Router
	backend Backend
	cache   TreeCache
	log     *slog.Logger
	apiKey  string
}

type Option func(*Server)

// WithCache enables the listTree snapshot cache.
func WithCache(c TreeCache) Option {
	return func(s *Server) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithAPIKey requires "Authorization: Bearer <key>" on /api routes.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

func NewServer(backend Backend, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{backend: backend, log: log}
	for _, o := range opts {
		o(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(AuthMiddleware(s.apiKey, s.log))
		}

		r.Get("/api/tree", s.handleListTree)
		r.Post("/api/nodes", s.handleCreateNode)
		r.Patch("/api/nodes/{id}", s.handleRenameNode)
		r.Delete("/api/nodes/{id}", s.handleDeleteNode)
		r.Post("/api/nodes/{id}/move", s.handleMoveNode)
		r.Put("/api/siblings/order", s.handleReorder)

		r.Get("/api/nodes/{id}/refs", s.handleListRefs)
		r.Post("/api/nodes/{id}/refs", s.handleAttachRef)
		r.Delete("/api/nodes/{id}/refs/{kind}/{refID}", s.handleDetachRef)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", "err", err)
		jsonError(w, "unavailable", "store unreachable", http.StatusServiceUnavailable)
		return
	}
	id, err := s.backend.ID(r.Context())
	if err != nil {
		s.log.Warn("health check: store id", "err", err)
		jsonError(w, "unavailable", "store unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "store": id})
}
