// Package server exposes the goal store over REST and the realtime feed
// over websockets.
//
// Routes:
//
//	GET    /health                    liveness, no auth
//	GET    /rest/v1/{table}           query rows
//	POST   /rest/v1/{table}           insert one row or an array of rows
//	PATCH  /rest/v1/{table}           update rows matching the filter
//	DELETE /rest/v1/{table}           delete rows matching the filter
//	GET    /realtime/v1               websocket change feed
//	GET    /auth/v1/user              identity behind the bearer token
//
// Every route except /health requires "Authorization: Bearer <token>" with
// a token issued by store.CreateSession.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/mschirtzinger/goalkeeper/internal/realtime"
	"github.com/mschirtzinger/goalkeeper/internal/store"
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8787)
	Addr string

	// Hub configures the realtime hub (default: realtime.DefaultConfig())
	Hub *realtime.Config

	// Logger for request logs (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "127.0.0.1:8787",
		Logger: log.New(os.Stderr, "[server] ", log.LstdFlags),
	}
}

// Server serves one store.
type Server struct {
	db     *store.DB
	hub    *realtime.Hub
	router *mux.Router
	config *Config

	listener net.Listener
	http     *http.Server
	wg       sync.WaitGroup
}

// New wires routes for db. The realtime hub is started by Start, or by
// the caller via Hub().Start() when using Handler directly.
func New(db *store.DB, config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	s := &Server{
		db:     db,
		hub:    realtime.NewHub(config.Hub),
		router: mux.NewRouter(),
		config: config,
	}
	RegisterRoutes(s.router, s)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the realtime hub.
func (s *Server) Hub() *realtime.Hub { return s.hub }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.hub.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.config.Logger.Printf("Listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop closes realtime connections and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.config.Logger.Println("Stopping server")
	s.hub.Stop()

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}
	s.wg.Wait()

	s.config.Logger.Println("Server stopped")
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}
