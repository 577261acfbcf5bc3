// Package api exposes the local HTTP surface: the upstream proxy endpoints
// the web clients call, plus the studio operations (submit, retry, remix,
// download, preview) backed by the local state.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariesai/studio-agent/internal/cache"
	"github.com/ariesai/studio-agent/internal/playback"
	"github.com/ariesai/studio-agent/internal/sora"
	"github.com/ariesai/studio-agent/internal/studio"
	"github.com/ariesai/studio-agent/internal/video"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port          int
	Service       *studio.Service
	Client        sora.Client
	Repository    video.Repository
	Previews      *cache.PreviewCache
	Thumbnails    *cache.ThumbnailCache
	Playback      playback.Streamer
	Poller        *studio.Poller
	Logger        *slog.Logger
	StartTime     time.Time
	DeviceID      string
	Version       string
	PollIntervalS int
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

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
