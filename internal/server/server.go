package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// New creates a new server instance listening on addr. A nil logger
// reuses the handler's.
func New(addr string, handler *Handler, log *slog.Logger) *Server {
	if log == nil {
		log = handler.log
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           SetupRouter(handler),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	return s.srv.Shutdown(ctx)
}
