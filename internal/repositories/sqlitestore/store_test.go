package sqlitestore

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/BradenHooton/bruteguard/internal/database"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.MigrateSQLite(context.Background(), db, "up"))
	return db
}

func at(hour int) time.Time {
	return time.Date(2026, 3, 14, hour, 30, 0, 0, time.UTC)
}

func TestLogRepository_AppendListAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewLogRepository(newTestDB(t))

	for i, hour := range []int{1, 5, 9, 13, 13} {
		sev := models.SeverityWarning
		if i == 0 {
			sev = models.SeverityInfo
		}
		require.NoError(t, repo.Append(ctx, &models.LogRecord{
			Timestamp: at(hour), IP: "10.0.0.5", User: "root",
			Message: "Failed password for root", Severity: sev, Country: "Local",
		}))
	}

	recent, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, at(13), recent[0].Timestamp)
	assert.Greater(t, recent[0].ID, recent[1].ID)

	counts, err := repo.HourlyCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[1])
	assert.Equal(t, 1, counts[5])
	assert.Equal(t, 1, counts[9])
	assert.Equal(t, 2, counts[13])
	assert.Equal(t, 0, counts[0])

	attacks, err := repo.CountBySeverity(ctx, models.SeverityWarning, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 4, attacks)
}

func autoBlock(ip string) (*models.BlockRecord, *models.IncidentRecord, *models.LogRecord) {
	now := time.Now().UTC()
	return &models.BlockRecord{IP: ip, Reason: "Brute-force attack (5 failed attempts)", Timestamp: now, Duration: "10m", Origin: models.BlockOriginAuto},
		&models.IncidentRecord{IP: ip, Attempts: 5, FirstAttempt: now, LastAttempt: now, Country: "Local",
			Status: models.IncidentBlocked, ISP: "Unknown ISP", ThreatScore: 100, Usernames: []string{"root", "admin"}},
		&models.LogRecord{IP: ip, User: models.SystemActor, Message: "auto block", Severity: models.SeverityCritical, Country: "Local"}
}

func TestBlockRepository_CreateWithIncident(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	blocks := NewBlockRepository(db)
	incidents := NewIncidentRepository(db)
	logs := NewLogRepository(db)

	b, inc, entry := autoBlock("10.0.0.5")
	require.NoError(t, blocks.CreateWithIncident(ctx, b, inc, entry))

	got, err := blocks.GetByIP(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, models.BlockOriginAuto, got.Origin)

	list, err := incidents.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"root", "admin"}, list[0].Usernames)
	assert.Equal(t, models.IncidentBlocked, list[0].Status)

	// A second escalation for the same IP writes nothing.
	b2, inc2, entry2 := autoBlock("10.0.0.5")
	err = blocks.CreateWithIncident(ctx, b2, inc2, entry2)
	assert.ErrorIs(t, err, models.ErrConflict)

	count, err := blocks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err = incidents.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	recent, err := logs.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestBlockRepository_UpsertAndLift(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	blocks := NewBlockRepository(db)
	incidents := NewIncidentRepository(db)

	b, inc, entry := autoBlock("203.0.113.9")
	require.NoError(t, blocks.CreateWithIncident(ctx, b, inc, entry))

	reverted, err := blocks.Lift(ctx, "203.0.113.9", &models.LogRecord{IP: "203.0.113.9", User: "admin", Message: "unblocked", Severity: models.SeverityInfo})
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)

	_, err = blocks.GetByIP(ctx, "203.0.113.9")
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := incidents.GetByID(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentWatching, got.Status)

	manual := &models.BlockRecord{IP: "203.0.113.9", Reason: "manual", Timestamp: time.Now(), Duration: "Permanent", Origin: models.BlockOriginManual}
	stored, err := blocks.Upsert(ctx, manual, &models.LogRecord{IP: "203.0.113.9", User: "admin", Message: "blocked", Severity: models.SeverityCritical})
	require.NoError(t, err)

	got, err = incidents.GetByID(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentBlocked, got.Status)

	// Upserting again keeps the row and refreshes its fields.
	again := &models.BlockRecord{IP: "203.0.113.9", Reason: "still bad", Timestamp: time.Now(), Duration: "24h", Origin: models.BlockOriginManual}
	updated, err := blocks.Upsert(ctx, again, &models.LogRecord{IP: "203.0.113.9", User: "admin", Message: "blocked", Severity: models.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, updated.ID)
	assert.Equal(t, "still bad", updated.Reason)
	assert.Equal(t, "24h", updated.Duration)

	count, err := blocks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBlockRepository_LiftKeepsResolvedIncidents(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	blocks := NewBlockRepository(db)
	incidents := NewIncidentRepository(db)

	b, inc, entry := autoBlock("198.51.100.7")
	require.NoError(t, blocks.CreateWithIncident(ctx, b, inc, entry))

	resolved, err := incidents.Resolve(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, resolved.Status)

	active, err := incidents.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, active)

	reverted, err := blocks.Lift(ctx, "198.51.100.7", &models.LogRecord{IP: "198.51.100.7", User: "admin", Message: "unblocked", Severity: models.SeverityInfo})
	require.NoError(t, err)
	assert.Zero(t, reverted)

	got, err := incidents.GetByID(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, got.Status)

	_, err = incidents.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	created, err := repo.Create(ctx, &models.User{Username: "admin", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = repo.Create(ctx, &models.User{Username: "admin", PasswordHash: "other"})
	assert.ErrorIs(t, err, models.ErrConflict)

	got, err := repo.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.Delete(ctx, created.ID))
	assert.ErrorIs(t, repo.Delete(ctx, created.ID), models.ErrNotFound)
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))

	_, err := repo.Get(ctx, "telegram_chat_id")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, repo.SetMany(ctx, map[string]string{
		"telegram_bot_token": "123:abc",
		"telegram_chat_id":   "42",
	}))
	require.NoError(t, repo.SetMany(ctx, map[string]string{"telegram_chat_id": "43"}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"telegram_bot_token": "123:abc", "telegram_chat_id": "43"}, all)
}
