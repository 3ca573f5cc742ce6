package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/BradenHooton/bruteguard/internal/metrics"
	"github.com/BradenHooton/bruteguard/internal/models"
)

const trackerShards = 32

// AttemptCounter is a source's current streak of consecutive failures.
// It only exists while Count > 0.
type AttemptCounter struct {
	IP           string
	Count        int
	FirstAttempt time.Time
	LastAttempt  time.Time
	Usernames    []string // distinct, first-seen order
}

// TrackerConfig holds the thresholds applied to failure streaks.
type TrackerConfig struct {
	MaxFailedAttempts     int
	CriticalAfterAttempts int
}

type trackerShard struct {
	mu       sync.Mutex
	counters map[string]*AttemptCounter
}

// AttemptTracker keeps per-source failure counters in memory and writes
// one log record per failure. Callers that need the read-modify-write and
// the log append to stay in arrival order hold the source's SourceLocker
// entry around RecordFailure.
type AttemptTracker struct {
	shards  [trackerShards]trackerShard
	logs    LogRepository
	geo     GeoLocator
	config  TrackerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAttemptTracker(logs LogRepository, geo GeoLocator, config TrackerConfig, logger *slog.Logger, m *metrics.Metrics) *AttemptTracker {
	if geo == nil {
		geo = unknownGeo{}
	}
	if config.MaxFailedAttempts < 1 {
		config.MaxFailedAttempts = 5
	}
	if config.CriticalAfterAttempts < 1 {
		config.CriticalAfterAttempts = 3
	}
	t := &AttemptTracker{
		logs:    logs,
		geo:     geo,
		config:  config,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for i := range t.shards {
		t.shards[i].counters = make(map[string]*AttemptCounter)
	}
	return t
}

func (t *AttemptTracker) shard(ip string) *trackerShard {
	h := fnv.New32a()
	h.Write([]byte(ip))
	return &t.shards[h.Sum32()%trackerShards]
}

// RecordFailure bumps the streak for ip and appends the failure to the log.
// The counter is updated even when the log write fails; the returned
// snapshot is valid in both cases and the error wraps models.ErrStorage.
func (t *AttemptTracker) RecordFailure(ctx context.Context, ip, username string) (AttemptCounter, error) {
	now := t.now().UTC()

	s := t.shard(ip)
	s.mu.Lock()
	c, ok := s.counters[ip]
	if !ok {
		c = &AttemptCounter{IP: ip, FirstAttempt: now}
		s.counters[ip] = c
		if t.metrics != nil {
			t.metrics.TrackedSources.Inc()
		}
	}
	c.Count++
	c.LastAttempt = now
	if !slices.Contains(c.Usernames, username) {
		c.Usernames = append(c.Usernames, username)
	}
	snapshot := *c
	snapshot.Usernames = slices.Clone(c.Usernames)
	s.mu.Unlock()

	severity := models.SeverityWarning
	if snapshot.Count >= t.config.CriticalAfterAttempts {
		severity = models.SeverityCritical
	}

	entry := &models.LogRecord{
		ID:        models.NewID(),
		Timestamp: now,
		IP:        ip,
		User:      username,
		Message:   fmt.Sprintf("Failed password for %s (attempt %d/%d)", username, snapshot.Count, t.config.MaxFailedAttempts),
		Severity:  severity,
		Country:   t.geo.Lookup(ip).Country,
	}
	if err := t.logs.Append(ctx, entry); err != nil {
		return snapshot, fmt.Errorf("append failure log: %w", err)
	}
	return snapshot, nil
}

// RecordSuccess ends any streak for ip. Safe to call when none exists.
func (t *AttemptTracker) RecordSuccess(ip string) {
	t.Clear(ip)
}

// Clear drops the counter for ip so the next failure starts at 1.
func (t *AttemptTracker) Clear(ip string) {
	s := t.shard(ip)
	s.mu.Lock()
	_, ok := s.counters[ip]
	delete(s.counters, ip)
	s.mu.Unlock()

	if ok && t.metrics != nil {
		t.metrics.TrackedSources.Dec()
	}
}

// Get returns a copy of the counter for ip.
func (t *AttemptTracker) Get(ip string) (AttemptCounter, bool) {
	s := t.shard(ip)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[ip]
	if !ok {
		return AttemptCounter{}, false
	}
	snapshot := *c
	snapshot.Usernames = slices.Clone(c.Usernames)
	return snapshot, true
}

// Len reports how many sources have an open streak.
func (t *AttemptTracker) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.counters)
		s.mu.Unlock()
	}
	return n
}

// EvictIdle removes streaks whose last failure is older than cutoff and
// returns how many were removed.
func (t *AttemptTracker) EvictIdle(cutoff time.Time) int {
	evicted := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for ip, c := range s.counters {
			if c.LastAttempt.Before(cutoff) {
				delete(s.counters, ip)
				evicted++
			}
		}
		s.mu.Unlock()
	}

	if evicted > 0 && t.metrics != nil {
		t.metrics.TrackedSources.Sub(float64(evicted))
		t.metrics.TrackerEvictions.Add(float64(evicted))
	}
	return evicted
}

// MaxFailedAttempts is the escalation threshold.
func (t *AttemptTracker) MaxFailedAttempts() int {
	return t.config.MaxFailedAttempts
}
