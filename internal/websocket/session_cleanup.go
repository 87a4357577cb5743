package websocket

import (
	"time"

	"go.uber.org/zap"
)

// IdleReaper disconnects relay clients that stopped sending messages
type IdleReaper struct {
	hub      *Hub
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewIdleReaper creates a reaper for clients idle longer than timeout. The
// hub is swept every timeout/4, but at least once a second.
func NewIdleReaper(hub *Hub, timeout time.Duration, logger *zap.Logger) *IdleReaper {
	interval := timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	return &IdleReaper{
		hub:      hub,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep
func (r *IdleReaper) Start() {
	go r.cleanupLoop()
	r.logger.Info("Idle reaper started",
		zap.Duration("timeout", r.timeout),
		zap.Duration("interval", r.interval))
}

// Stop gracefully stops the reaper
func (r *IdleReaper) Stop() {
	close(r.stopChan)
	r.logger.Info("Idle reaper stopped")
}

func (r *IdleReaper) cleanupLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.runCleanup()
		}
	}
}

func (r *IdleReaper) runCleanup() int {
	reaped := r.hub.ReapIdle(r.now(), r.timeout)
	if reaped > 0 {
		r.logger.Info("Idle clients disconnected", zap.Int("count", reaped))
	}
	return reaped
}
