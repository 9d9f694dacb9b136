package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultShutdownTimeout = 5 * time.Second

// Server exposes a Backend over HTTP using the same chi-router,
// writeJSON-helper shape this codebase's other HTTP front end uses.
type Server struct {
	backend    *Backend
	httpServer *http.Server
	addr       string
	log        *slog.Logger
}

// NewServer creates a server serving backend on addr (e.g. ":8080").
func NewServer(backend *Backend, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{backend: backend, addr: addr, log: log}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/api/dispatch", s.handleDispatch)
	return r
}

// Start begins serving in the background; it returns once the
// listener is bound or an error occurs binding it.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", "error", err)
		}
	}()
	s.log.Info("httptransport server started", "addr", s.addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httptransport: shutdown: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, wireResponse{Err: err.Error()})
		return
	}
	resp := s.backend.Handle(req)
	s.writeJSON(w, http.StatusOK, resp)
}
