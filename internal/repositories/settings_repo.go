package repositories

import (
	"context"

	"github.com/BradenHooton/bruteguard/internal/database"
	"github.com/jackc/pgx/v5"
)

// SettingsRepository is a key/value table for runtime settings.
type SettingsRepository struct {
	db *database.DB
}

func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	if err := r.db.Pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value); err != nil {
		return "", database.MapPostgresError(err)
	}
	return value, nil
}

func (r *SettingsRepository) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, database.MapPostgresError(err)
		}
		out[k] = v
	}
	return out, database.MapPostgresError(rows.Err())
}

// SetMany upserts all values in one transaction.
func (r *SettingsRepository) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for k, v := range values {
			if _, err := tx.Exec(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
			`, k, v); err != nil {
				return database.MapPostgresError(err)
			}
		}
		return nil
	})
}
