package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdleEvictor drops failure counters that have gone quiet.
// *services.AttemptTracker satisfies it.
type IdleEvictor interface {
	EvictIdle(cutoff time.Time) int
}

// TrackerJanitor periodically evicts idle attempt counters so the tracker
// stays bounded under address-rotating attackers.
type TrackerJanitor struct {
	tracker  IdleEvictor
	logger   *slog.Logger
	interval time.Duration
	idleTTL  time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewTrackerJanitor(tracker IdleEvictor, idleTTL, interval time.Duration, logger *slog.Logger) *TrackerJanitor {
	return &TrackerJanitor{
		tracker:  tracker,
		logger:   logger,
		interval: interval,
		idleTTL:  idleTTL,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
// A zero TTL or interval disables eviction.
func (j *TrackerJanitor) Start(ctx context.Context) {
	if j.idleTTL <= 0 || j.interval <= 0 {
		j.logger.Info("tracker janitor disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			j.logger.Info("tracker janitor stopped")
			return
		case <-ctx.Done():
			j.logger.Info("tracker janitor context cancelled")
			return
		}
	}
}

func (j *TrackerJanitor) sweep() int {
	evicted := j.tracker.EvictIdle(j.now().Add(-j.idleTTL))
	if evicted > 0 {
		j.logger.Info("evicted idle attempt counters", slog.Int("count", evicted))
	}
	return evicted
}

// Stop signals the janitor to stop. Safe to call more than once.
func (j *TrackerJanitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}
