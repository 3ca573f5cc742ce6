package sqlitestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/BradenHooton/bruteguard/internal/models"
)

type LogRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) *LogRepository {
	return &LogRepository{db: db}
}

const logColumns = `id, timestamp, ip, username, message, severity, country`

func scanLog(scanner rowScanner) (*models.LogRecord, error) {
	var entry models.LogRecord
	var ts string
	if err := scanner.Scan(&entry.ID, &ts, &entry.IP, &entry.User, &entry.Message, &entry.Severity, &entry.Country); err != nil {
		return nil, mapError(err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	entry.Timestamp = t
	return &entry, nil
}

func insertLog(ctx context.Context, q execer, entry *models.LogRecord) error {
	if entry.ID == "" {
		entry.ID = models.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO logs (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, formatTime(entry.Timestamp), entry.IP, entry.User,
		entry.Message, string(entry.Severity), entry.Country)
	return mapError(err)
}

func (r *LogRepository) Append(ctx context.Context, entry *models.LogRecord) error {
	return insertLog(ctx, r.db, entry)
}

func (r *LogRepository) ListRecent(ctx context.Context, limit int) ([]*models.LogRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+logColumns+` FROM logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return collect(rows, scanLog)
}

func (r *LogRepository) HourlyCounts(ctx context.Context) ([24]int, error) {
	var counts [24]int

	rows, err := r.db.QueryContext(ctx, `
		SELECT CAST(substr(timestamp, 12, 2) AS INTEGER) AS hour, COUNT(*)
		FROM logs GROUP BY hour
	`)
	if err != nil {
		return counts, mapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hour, count int
		if err := rows.Scan(&hour, &count); err != nil {
			return counts, mapError(err)
		}
		if hour >= 0 && hour < 24 {
			counts[hour] = count
		}
	}
	return counts, mapError(rows.Err())
}

func (r *LogRepository) CountBySeverity(ctx context.Context, severities ...models.Severity) (int, error) {
	if len(severities) == 0 {
		return 0, nil
	}
	args := make([]any, len(severities))
	for i, s := range severities {
		args[i] = string(s)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(severities)), ",")
	return countQuery(ctx, r.db, `SELECT COUNT(*) FROM logs WHERE severity IN (`+placeholders+`)`, args...)
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]*T, error) {
	defer func() { _ = rows.Close() }()

	out := make([]*T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, mapError(rows.Err())
}
