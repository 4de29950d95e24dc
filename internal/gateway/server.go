package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
)

// Server is the gateway HTTP server that implements manager.Runnable.
type Server struct {
	addr string
	log  logr.Logger
	srv  *http.Server
}

// NewServer creates a new gateway server around handler.
func NewServer(addr string, handler http.Handler, log logr.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/", handler)

	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start implements manager.Runnable. It starts the HTTP server and blocks until
// the context is cancelled, then gracefully shuts down.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("starting x402 gateway", "addr", s.addr)

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error(err, "gateway graceful shutdown failed")
		}
	}()

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	s.log.Info("gateway server stopped")
	return nil
}

// NeedLeaderElection lets every replica serve traffic.
func (s *Server) NeedLeaderElection() bool { return false }
