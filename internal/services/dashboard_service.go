package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BradenHooton/bruteguard/internal/models"
)

const (
	// RecentLogLimit caps GET /logs.
	RecentLogLimit = 100
	// chartBucketHours is the width of one chart bucket.
	chartBucketHours = 4
)

// DashboardService serves the read side of the dashboard plus the two
// small write paths that do not touch block state.
type DashboardService struct {
	ledger Ledger
	geo    GeoLocator
	logger *slog.Logger
	now    func() time.Time
}

func NewDashboardService(ledger Ledger, geo GeoLocator, logger *slog.Logger) *DashboardService {
	if geo == nil {
		geo = unknownGeo{}
	}
	return &DashboardService{ledger: ledger, geo: geo, logger: logger, now: time.Now}
}

// RecentLogs returns the newest log records first.
func (s *DashboardService) RecentLogs(ctx context.Context) ([]*models.LogRecord, error) {
	logs, err := s.ledger.Logs.ListRecent(ctx, RecentLogLimit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return logs, nil
}

// AppendLog stores an externally supplied record. The id is always
// assigned here; timestamp and country are filled when missing.
func (s *DashboardService) AppendLog(ctx context.Context, entry *models.LogRecord) error {
	if !entry.Severity.Valid() {
		return fmt.Errorf("severity %q: %w", entry.Severity, models.ErrBadRequest)
	}
	entry.ID = models.NewID()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if entry.Country == "" {
		entry.Country = s.geo.Lookup(entry.IP).Country
	}
	if err := s.ledger.Logs.Append(ctx, entry); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *DashboardService) Incidents(ctx context.Context) ([]*models.IncidentRecord, error) {
	incidents, err := s.ledger.Incidents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

// ResolveIncident marks an incident RESOLVED. Unblocking never reverts a
// resolved incident.
func (s *DashboardService) ResolveIncident(ctx context.Context, id, actor string) (*models.IncidentRecord, error) {
	incident, err := s.ledger.Incidents.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("incident resolved",
		slog.String("incident_id", id),
		slog.String("ip", incident.IP),
		slog.String("actor", actor),
	)
	return incident, nil
}

func (s *DashboardService) Blocks(ctx context.Context) ([]*models.BlockRecord, error) {
	blocks, err := s.ledger.Blocks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return blocks, nil
}

// Chart folds the per-hour log counts into six four-hour buckets,
// labelled by their first hour.
func (s *DashboardService) Chart(ctx context.Context) ([]models.ChartPoint, error) {
	hourly, err := s.ledger.Logs.HourlyCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("hourly counts: %w", err)
	}
	return BucketHourly(hourly), nil
}

// BucketHourly sums 24 hour-of-day counts into 4-hour chart points.
func BucketHourly(hourly [24]int) []models.ChartPoint {
	points := make([]models.ChartPoint, 0, 24/chartBucketHours)
	for start := 0; start < 24; start += chartBucketHours {
		total := 0
		for h := start; h < start+chartBucketHours; h++ {
			total += hourly[h]
		}
		points = append(points, models.ChartPoint{
			Time:     fmt.Sprintf("%02d:00", start),
			Attempts: total,
		})
	}
	return points
}

// Summary gathers the headline counters concurrently.
func (s *DashboardService) Summary(ctx context.Context) (*models.Summary, error) {
	var summary models.Summary

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.ledger.Incidents.CountActive(ctx)
		if err != nil {
			return fmt.Errorf("count active incidents: %w", err)
		}
		summary.ActiveIncidents = n
		return nil
	})
	g.Go(func() error {
		n, err := s.ledger.Blocks.Count(ctx)
		if err != nil {
			return fmt.Errorf("count blocks: %w", err)
		}
		summary.BlockedIPs = n
		return nil
	})
	g.Go(func() error {
		n, err := s.ledger.Logs.CountBySeverity(ctx, models.SeverityWarning, models.SeverityCritical)
		if err != nil {
			return fmt.Errorf("count attacks: %w", err)
		}
		summary.TotalAttacks = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &summary, nil
}
