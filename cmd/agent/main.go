package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ariesai/studio-agent/internal/api"
	"github.com/ariesai/studio-agent/internal/cache"
	"github.com/ariesai/studio-agent/internal/config"
	"github.com/ariesai/studio-agent/internal/db"
	"github.com/ariesai/studio-agent/internal/logging"
	"github.com/ariesai/studio-agent/internal/playback"
	"github.com/ariesai/studio-agent/internal/sora"
	"github.com/ariesai/studio-agent/internal/studio"
	"github.com/ariesai/studio-agent/internal/ui"
	"github.com/ariesai/studio-agent/internal/video"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir(), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	if err := os.MkdirAll(cfg.DownloadsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create downloads dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting studio agent", "version", Version, "data_dir", cfg.DataDir())

	if cfg.APIKey() == "" {
		logger.Warn("OPENAI_API_KEY is not set, upstream requests will fail")
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := video.NewSQLiteRepository(database)

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                   SORA STUDIO AGENT v0.1.0                ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	client := sora.NewHTTPClient(cfg, logger)
	playbackSvc := playback.NewServer(logger)

	previews, err := cache.NewPreviewCache(filepath.Join(cfg.CacheDir(), "previews"), client, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize preview cache: %w", err)
	}
	defer previews.Close()

	thumbs, err := cache.NewThumbnailCache(filepath.Join(cfg.CacheDir(), "thumbnails"), client, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize thumbnail cache: %w", err)
	}
	defer thumbs.Close()

	service := studio.NewService(repo, client, previews, thumbs, cfg.DownloadsDir(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := studio.NewPoller(service, cfg.PollInterval(), logger)
	go poller.Run(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.Port(),
		Service:       service,
		Client:        client,
		Repository:    repo,
		Previews:      previews,
		Thumbnails:    thumbs,
		Playback:      playbackSvc,
		Poller:        poller,
		Logger:        logger,
		StartTime:     startTime,
		DeviceID:      deviceID,
		Version:       Version,
		PollIntervalS: int(cfg.PollInterval().Seconds()),
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Poller: poller,
			Logger: logger,
			OnOpenDownloads: func() error {
				return openFolder(cfg.DownloadsDir())
			},
			OnDownloadAll: func() error {
				result, err := service.DownloadAll(context.Background(), "")
				if err != nil {
					return err
				}
				logger.Info("download all finished", "saved", result.Saved, "failed", result.Failed)
				return nil
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(repo video.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo video.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}

func openFolder(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("explorer", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}
