package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/RTnhN/boolbin/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the boolbin HTTP API server.
type Server struct {
	db      *store.DB
	router  chi.Router
	idleTTL time.Duration
	version string
	started time.Time
}

// New creates a new Server. idleTTL is the idle-expiry threshold applied by
// the opportunistic sweep on cell creation.
func New(db *store.DB, idleTTL time.Duration, version string) *Server {
	s := &Server{
		db:      db,
		idleTTL: idleTTL,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Browser-facing pages
	r.Get("/", s.handleIndex)
	r.Get("/write/{writeKey}", s.handleWrite)
	r.Get("/read/{readKey}", s.handleRead)
	r.Get("/all", s.handleAllPage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/cells", s.handleCreateCell)
		r.Get("/cells", s.handleListCells)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
