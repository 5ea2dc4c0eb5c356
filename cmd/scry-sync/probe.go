package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
)

// maxProbeTimeout caps a single reachability check.
const maxProbeTimeout = 5 * time.Second

// pinger is the part of the remote store the probe needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// connectivityProbe periodically pings the remote store and reports the
// result through a clock.Switch, which the sync engine watches.
type connectivityProbe struct {
	target   pinger
	conn     *clock.Switch
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

func newConnectivityProbe(target pinger, conn *clock.Switch, interval time.Duration, logger *slog.Logger) *connectivityProbe {
	return &connectivityProbe{
		target:   target,
		conn:     conn,
		interval: interval,
		timeout:  min(interval, maxProbeTimeout),
		logger:   logger.With(slog.String("component", "connectivity_probe")),
	}
}

// Check pings the remote store once, updates the switch and returns the new
// state.
func (p *connectivityProbe) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.target.Ping(pingCtx)
	online := err == nil
	if online != p.conn.Online() {
		if online {
			p.logger.Info("remote store reachable")
		} else {
			p.logger.Warn("remote store unreachable", slog.String("error", err.Error()))
		}
	}
	p.conn.Set(online)
	return online
}

// Start schedules Check every interval until Stop is called or ctx ends.
func (p *connectivityProbe) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduler != nil {
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(p.interval).SingletonMode().Do(func() {
		if ctx.Err() != nil {
			return
		}
		p.Check(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule connectivity probe: %w", err)
	}
	s.StartAsync()
	p.scheduler = s
	p.logger.Info("connectivity probe started", slog.Duration("interval", p.interval))
	return nil
}

// Stop ends the periodic checks. It is safe to call more than once.
func (p *connectivityProbe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduler == nil {
		return
	}
	p.scheduler.Stop()
	p.scheduler = nil
}
