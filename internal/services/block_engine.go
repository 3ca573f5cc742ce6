package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bruteguard/internal/metrics"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/BradenHooton/bruteguard/internal/notify"
	pkglogger "github.com/BradenHooton/bruteguard/pkg/logger"
)

// ManualBlock is an administrator's request to deny an address.
type ManualBlock struct {
	IP       string
	Reason   string
	Duration string
}

// BlockEngine turns a failure streak that crossed the threshold into a
// block rule plus incident, and handles the manual block and unblock paths.
// Every check-then-write sequence runs under the source's lock.
type BlockEngine struct {
	blocks       BlockRepository
	tracker      *AttemptTracker
	locks        *SourceLocker
	geo          GeoLocator
	notifier     Notifier
	autoDuration string
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewBlockEngine(
	blocks BlockRepository,
	tracker *AttemptTracker,
	locks *SourceLocker,
	geo GeoLocator,
	notifier Notifier,
	autoDuration string,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *BlockEngine {
	if geo == nil {
		geo = unknownGeo{}
	}
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &BlockEngine{
		blocks:       blocks,
		tracker:      tracker,
		locks:        locks,
		geo:          geo,
		notifier:     notifier,
		autoDuration: autoDuration,
		logger:       logger,
		auditLogger:  auditLogger,
		metrics:      m,
		now:          time.Now,
	}
}

// BlockFor returns the active block for ip, or models.ErrNotFound.
func (e *BlockEngine) BlockFor(ctx context.Context, ip string) (*models.BlockRecord, error) {
	return e.blocks.GetByIP(ctx, ip)
}

// Escalate blocks the counter's source. It is idempotent: if a block
// already exists nothing new is written. The returned bool reports
// whether this call created the block.
func (e *BlockEngine) Escalate(ctx context.Context, counter AttemptCounter) (*models.BlockRecord, bool, error) {
	unlock := e.locks.Lock(counter.IP)
	defer unlock()
	return e.escalate(ctx, counter)
}

// escalate expects the caller to hold the lock for counter.IP.
func (e *BlockEngine) escalate(ctx context.Context, counter AttemptCounter) (*models.BlockRecord, bool, error) {
	existing, err := e.blocks.GetByIP(ctx, counter.IP)
	switch {
	case err == nil:
		e.tracker.Clear(counter.IP)
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, fmt.Errorf("check existing block: %w", err)
	}

	now := e.now().UTC()
	loc := e.geo.Lookup(counter.IP)

	block := &models.BlockRecord{
		ID:        models.NewID(),
		IP:        counter.IP,
		Reason:    fmt.Sprintf("Brute-force attack (%d failed attempts)", counter.Count),
		Timestamp: now,
		Duration:  e.autoDuration,
		Origin:    models.BlockOriginAuto,
	}
	incident := &models.IncidentRecord{
		ID:           models.NewID(),
		IP:           counter.IP,
		Attempts:     counter.Count,
		FirstAttempt: counter.FirstAttempt,
		LastAttempt:  counter.LastAttempt,
		Country:      loc.Country,
		Status:       models.IncidentBlocked,
		ISP:          loc.ISP,
		ThreatScore:  models.ThreatScore(counter.Count),
		Usernames:    counter.Usernames,
	}
	entry := &models.LogRecord{
		ID:        models.NewID(),
		Timestamp: now,
		IP:        counter.IP,
		User:      models.SystemActor,
		Message:   fmt.Sprintf("IP %s automatically blocked due to %d failed login attempts", counter.IP, counter.Count),
		Severity:  models.SeverityCritical,
		Country:   loc.Country,
	}

	if err := e.blocks.CreateWithIncident(ctx, block, incident, entry); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Another writer got there first.
			e.tracker.Clear(counter.IP)
			existing, getErr := e.blocks.GetByIP(ctx, counter.IP)
			if getErr != nil {
				return nil, false, fmt.Errorf("reload block: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create block: %w", err)
	}

	e.tracker.Clear(counter.IP)

	e.logger.Warn("source auto-blocked",
		slog.String("ip", counter.IP),
		slog.Int("attempts", counter.Count),
		slog.String("country", loc.Country),
	)
	if e.auditLogger != nil {
		e.auditLogger.LogBlockAction("auto_block", models.SystemActor, counter.IP, map[string]string{
			"attempts":  strconv.Itoa(counter.Count),
			"usernames": strings.Join(counter.Usernames, ","),
		})
	}
	if e.metrics != nil {
		e.metrics.BlocksCreated.WithLabelValues(string(models.BlockOriginAuto)).Inc()
	}

	e.notifier.Notify(notify.Event{
		IP:        counter.IP,
		Reason:    block.Reason,
		Country:   loc.Country,
		ISP:       loc.ISP,
		Attempts:  counter.Count,
		Usernames: counter.Usernames,
		Origin:    models.BlockOriginAuto,
		Duration:  block.Duration,
		Timestamp: now,
	})

	return block, true, nil
}

// BlockManually creates or refreshes a MANUAL block for req.IP. Any open
// streak for the address is dropped since the source is now denied.
func (e *BlockEngine) BlockManually(ctx context.Context, req ManualBlock, actor string) (*models.BlockRecord, error) {
	unlock := e.locks.Lock(req.IP)
	defer unlock()

	if req.Duration == "" {
		req.Duration = models.DefaultManualDuration
	}
	if req.Reason == "" {
		req.Reason = "Manually blocked by " + actor
	}

	now := e.now().UTC()
	block := &models.BlockRecord{
		ID:        models.NewID(),
		IP:        req.IP,
		Reason:    req.Reason,
		Timestamp: now,
		Duration:  req.Duration,
		Origin:    models.BlockOriginManual,
	}
	entry := &models.LogRecord{
		ID:        models.NewID(),
		Timestamp: now,
		IP:        req.IP,
		User:      actor,
		Message:   fmt.Sprintf("IP %s manually blocked", req.IP),
		Severity:  models.SeverityCritical,
		Country:   e.geo.Lookup(req.IP).Country,
	}

	saved, err := e.blocks.Upsert(ctx, block, entry)
	if err != nil {
		return nil, fmt.Errorf("upsert block: %w", err)
	}
	e.tracker.Clear(req.IP)

	if e.auditLogger != nil {
		e.auditLogger.LogBlockAction("manual_block", actor, req.IP, map[string]string{
			"reason":   req.Reason,
			"duration": req.Duration,
		})
	}
	if e.metrics != nil {
		e.metrics.BlocksCreated.WithLabelValues(string(models.BlockOriginManual)).Inc()
	}
	return saved, nil
}

// Unblock removes the block with the given id, reverts the address's
// BLOCKED incidents to WATCHING and clears its streak.
func (e *BlockEngine) Unblock(ctx context.Context, id, actor string) error {
	block, err := e.blocks.GetByID(ctx, id)
	if err != nil {
		return err
	}

	unlock := e.locks.Lock(block.IP)
	defer unlock()

	entry := &models.LogRecord{
		ID:        models.NewID(),
		Timestamp: e.now().UTC(),
		IP:        block.IP,
		User:      actor,
		Message:   fmt.Sprintf("IP %s unblocked", block.IP),
		Severity:  models.SeverityInfo,
		Country:   e.geo.Lookup(block.IP).Country,
	}
	if _, err := e.blocks.Lift(ctx, block.IP, entry); err != nil {
		return fmt.Errorf("lift block: %w", err)
	}
	e.tracker.Clear(block.IP)

	if e.auditLogger != nil {
		e.auditLogger.LogBlockAction("unblock", actor, block.IP, map[string]string{"block_id": id})
	}
	if e.metrics != nil {
		e.metrics.BlocksLifted.Inc()
	}
	return nil
}
