package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/qiaofuyo/video-slice/internal/doctor"
	"github.com/qiaofuyo/video-slice/internal/playback"
	"github.com/qiaofuyo/video-slice/internal/player"
	"github.com/qiaofuyo/video-slice/internal/state"
	"github.com/qiaofuyo/video-slice/internal/workspace"
)

type Server struct {
	httpServer *http.Server
	hub        *Hub
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	Workspace      *workspace.Workspace
	Hub            *Hub
	Locators       *playback.Registry
	PlaybackServer playback.PlaybackService
	Presence       *player.Presence
	Repository     state.Repository
	Doctor         *doctor.Cached
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		hub:    cfg.Hub,
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes WebSocket clients, which the HTTP server does not track,
// then drains the remaining requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// BaseURL is the origin playback locators are issued under.
func BaseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}
