// Package server exposes the router and conversations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/router"
	"lhihi/internal/session"
	"lhihi/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Deps are the services the handlers use.
type Deps struct {
	Router   *router.Router
	Sessions *session.Service
	Store    *store.Store
	Version  string
}

// Server is the HTTP API.
type Server struct {
	deps            Deps
	http            *http.Server
	shutdownTimeout time.Duration
}

// New builds the server. Nothing listens until Serve.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{deps: deps, shutdownTimeout: cfg.ServerShutdownTimeout()}
	s.http = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ServerReadTimeout(),
		ReadTimeout:       cfg.ServerReadTimeout(),
		WriteTimeout:      cfg.ServerWriteTimeout(),
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(Trace)
	r.Use(requestLog)

	h := &handlers{deps: s.deps}

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/models", h.models)
		r.Post("/generate", h.generate)
		r.Post("/classify", h.classify)
		r.Post("/analyze-context", h.analyzeContext)

		r.Get("/conversations", h.listConversations)
		r.Post("/conversations", h.createConversation)
		r.Get("/conversations/{id}", h.getConversation)
		r.Delete("/conversations/{id}", h.deleteConversation)
		r.Post("/conversations/{id}/messages", h.sendMessage)
		r.Post("/conversations/{id}/regenerate", h.regenerate)
		r.Put("/conversations/{id}/turns/{turn_id}", h.editTurn)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "no route for "+r.Method+" "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed", nil)
	})
	return r
}

// Serve listens on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Server("Listening on %s", ln.Addr())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	logging.Server("Shutting down")
	if err := s.http.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
