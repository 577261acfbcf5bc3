package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ariesai/studio-agent/internal/studio"
)

type Tray struct {
	poller *studio.Poller
	logger *slog.Logger

	statusItem *systray.MenuItem
	videosItem *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onOpenDownloads func() error
	onDownloadAll   func() error
	onQuit          func()
}

type TrayConfig struct {
	Poller          *studio.Poller
	Logger          *slog.Logger
	OnOpenDownloads func() error
	OnDownloadAll   func() error
	OnQuit          func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		poller:          cfg.Poller,
		logger:          cfg.Logger,
		onOpenDownloads: cfg.OnOpenDownloads,
		onDownloadAll:   cfg.OnDownloadAll,
		onQuit:          cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Sora Studio")
	systray.SetTooltip("Sora Studio Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.videosItem = systray.AddMenuItem("Videos: 0", "Tracked videos")
	t.videosItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Polling", "Pause status polling")

	downloadAllItem := systray.AddMenuItem("Download All Completed", "Save all completed videos")
	openDownloadsItem := systray.AddMenuItem("Open Downloads Folder", "Open the downloads folder")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Sora Studio Agent")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-downloadAllItem.ClickedCh:
				t.handleDownloadAll()
			case <-openDownloadsItem.ClickedCh:
				t.handleOpenDownloads()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.poller == nil {
		return
	}

	if t.poller.Paused() {
		t.poller.Resume()
		t.pauseItem.SetTitle("Pause Polling")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.poller.Pause()
		t.pauseItem.SetTitle("Resume Polling")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleDownloadAll() {
	if t.onDownloadAll != nil {
		if err := t.onDownloadAll(); err != nil {
			t.logger.Error("failed to download videos", "error", err)
		}
	}
}

func (t *Tray) handleOpenDownloads() {
	if t.onOpenDownloads != nil {
		if err := t.onOpenDownloads(); err != nil {
			t.logger.Error("failed to open downloads folder", "error", err)
		}
	}
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.poller != nil && t.poller.Paused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) UpdateVideoCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.videosItem.SetTitle(fmt.Sprintf("Videos: %d", count))
}

func (t *Tray) Quit() {
	systray.Quit()
}
