// Package api exposes the editor over a localhost JSON API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kioskmedia/timeline-agent/internal/editor"
	"github.com/kioskmedia/timeline-agent/internal/ledger"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/playback"
)

// Server is the loopback HTTP listener for the API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	mu   sync.Mutex
	addr string
}

type ServerConfig struct {
	Port           int
	Editor         *editor.Editor
	Repository     ledger.Repository
	Janitor        *ledger.Janitor
	Doctor         *media.Doctor
	Prober         media.Prober
	PlaybackServer playback.PlaybackService
	// OpTimeout bounds a single edit operation. Zero means no limit.
	OpTimeout time.Duration
	Logger    *slog.Logger
	StartTime time.Time
	DeviceID  string
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port))
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      0, // playback streams whole artifacts
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
		addr:   addr,
	}
}

// Start binds the loopback listener and serves until Shutdown. With port 0
// the kernel picks a port, reported by Addr once bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
