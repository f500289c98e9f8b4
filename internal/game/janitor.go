package game

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically evicts ended games from a Service.
type Janitor struct {
	service  *Service
	interval time.Duration
	maxAge   time.Duration
	onEvict  func(ids []string)
	logger   *zap.Logger
}

// NewJanitor creates a janitor. onEvict, if set, is called with the ids
// removed by each pass.
func NewJanitor(service *Service, interval, maxAge time.Duration, onEvict func(ids []string), logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		service:  service,
		interval: interval,
		maxAge:   maxAge,
		onEvict:  onEvict,
		logger:   logger,
	}
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep() []string {
	removed := j.service.Cleanup(j.maxAge)
	if len(removed) > 0 && j.onEvict != nil {
		j.onEvict(removed)
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Warn("game cleanup disabled", zap.Duration("interval", j.interval))
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}
