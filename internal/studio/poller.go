package studio

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Poller drives the status refresh loop. Every interval it refreshes all
// pollable items and reconciles the asset caches. The loop is pausable from
// the tray.
type Poller struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger

	paused  atomic.Bool
	running atomic.Bool
}

func NewPoller(service *Service, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until the context is cancelled. One tick runs immediately so a
// restart does not wait a full interval to catch up on in-flight videos.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.logger != nil {
		p.logger.Info("poller started", "interval", p.interval.String())
	}

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			if p.logger != nil {
				p.logger.Info("poller stopped")
			}
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.paused.Load() {
		return
	}
	if !p.running.CompareAndSwap(false, true) {
		// Previous tick still in flight.
		return
	}
	defer p.running.Store(false)

	p.service.RefreshAll(ctx)
}

// Pause stops refreshes until Resume. The loop keeps ticking so resuming
// takes effect within one interval.
func (p *Poller) Pause() {
	p.paused.Store(true)
	if p.logger != nil {
		p.logger.Info("polling paused")
	}
}

func (p *Poller) Resume() {
	p.paused.Store(false)
	if p.logger != nil {
		p.logger.Info("polling resumed")
	}
}

// Paused reports whether refreshes are currently suppressed.
func (p *Poller) Paused() bool {
	return p.paused.Load()
}
