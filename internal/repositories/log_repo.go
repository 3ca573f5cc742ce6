package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bruteguard/internal/database"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// LogRepository stores the append-only attempt log.
type LogRepository struct {
	db *database.DB
}

func NewLogRepository(db *database.DB) *LogRepository {
	return &LogRepository{db: db}
}

const logColumns = `id, timestamp, ip, username, message, severity, country`

func scanLogRow(scanner rowScanner) (*models.LogRecord, error) {
	var entry models.LogRecord
	if err := scanner.Scan(
		&entry.ID, &entry.Timestamp, &entry.IP, &entry.User,
		&entry.Message, &entry.Severity, &entry.Country,
	); err != nil {
		return nil, database.MapPostgresError(err)
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}

// insertLog assigns an ID and timestamp when missing and writes the entry.
func insertLog(ctx context.Context, q execer, entry *models.LogRecord) error {
	if entry.ID == "" {
		entry.ID = models.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `INSERT INTO logs (` + logColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.Exec(ctx, query,
		entry.ID, entry.Timestamp, entry.IP, entry.User,
		entry.Message, string(entry.Severity), entry.Country,
	)
	return database.MapPostgresError(err)
}

func (r *LogRepository) Append(ctx context.Context, entry *models.LogRecord) error {
	return insertLog(ctx, r.db.Pool, entry)
}

// ListRecent returns up to limit entries, newest first.
func (r *LogRepository) ListRecent(ctx context.Context, limit int) ([]*models.LogRecord, error) {
	query := `SELECT ` + logColumns + ` FROM logs ORDER BY id DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.LogRecord, error) {
		return scanLogRow(row)
	})
}

// HourlyCounts returns the number of entries per UTC hour of day.
func (r *LogRepository) HourlyCounts(ctx context.Context) ([24]int, error) {
	var counts [24]int

	query := `
		SELECT EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC')::int AS hour, COUNT(*)
		FROM logs GROUP BY hour
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return counts, database.MapPostgresError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var hour, count int
		if err := rows.Scan(&hour, &count); err != nil {
			return counts, database.MapPostgresError(err)
		}
		if hour >= 0 && hour < 24 {
			counts[hour] = count
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("error iterating hourly counts: %w", database.MapPostgresError(err))
	}
	return counts, nil
}

func (r *LogRepository) CountBySeverity(ctx context.Context, severities ...models.Severity) (int, error) {
	values := make([]string, len(severities))
	for i, s := range severities {
		values[i] = string(s)
	}

	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM logs WHERE severity = ANY($1)`, values).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}
