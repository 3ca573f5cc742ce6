package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bruteguard/internal/database"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// BlockRepository owns block rules and the multi-record writes that
// create or lift them together with their incidents and log entries.
type BlockRepository struct {
	db *database.DB
}

func NewBlockRepository(db *database.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

const blockColumns = `id, ip, reason, created_at, duration, origin`

func scanBlockRow(scanner rowScanner) (*models.BlockRecord, error) {
	var block models.BlockRecord
	if err := scanner.Scan(
		&block.ID, &block.IP, &block.Reason, &block.Timestamp, &block.Duration, &block.Origin,
	); err != nil {
		return nil, database.MapPostgresError(err)
	}
	block.Timestamp = block.Timestamp.UTC()
	return &block, nil
}

func (r *BlockRepository) GetByIP(ctx context.Context, ip string) (*models.BlockRecord, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE ip = $1`
	return scanBlockRow(r.db.Pool.QueryRow(ctx, query, ip))
}

func (r *BlockRepository) GetByID(ctx context.Context, id string) (*models.BlockRecord, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE id = $1`
	return scanBlockRow(r.db.Pool.QueryRow(ctx, query, id))
}

// List returns all blocks, newest first.
func (r *BlockRepository) List(ctx context.Context) ([]*models.BlockRecord, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.BlockRecord, error) {
		return scanBlockRow(row)
	})
}

func (r *BlockRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// CreateWithIncident writes an automatic block, its incident and the
// block log entry in one transaction. ErrConflict means the IP already
// has a block and nothing was written.
func (r *BlockRepository) CreateWithIncident(ctx context.Context, block *models.BlockRecord, incident *models.IncidentRecord, entry *models.LogRecord) error {
	if block.ID == "" {
		block.ID = models.NewID()
	}
	if incident.ID == "" {
		incident.ID = models.NewID()
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO blocks (`+blockColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (ip) DO NOTHING
		`, block.ID, block.IP, block.Reason, block.Timestamp, block.Duration, string(block.Origin))
		if err != nil {
			return database.MapPostgresError(err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrConflict
		}

		if err := insertIncident(ctx, tx, incident); err != nil {
			return err
		}
		return insertLog(ctx, tx, entry)
	})
}

// Upsert creates or replaces the block for block.IP, promotes the IP's
// WATCHING incidents to BLOCKED and appends entry.
func (r *BlockRepository) Upsert(ctx context.Context, block *models.BlockRecord, entry *models.LogRecord) (*models.BlockRecord, error) {
	if block.ID == "" {
		block.ID = models.NewID()
	}

	var stored *models.BlockRecord
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO blocks (`+blockColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (ip) DO UPDATE SET
				reason = EXCLUDED.reason,
				created_at = EXCLUDED.created_at,
				duration = EXCLUDED.duration,
				origin = EXCLUDED.origin
			RETURNING `+blockColumns,
			block.ID, block.IP, block.Reason, block.Timestamp, block.Duration, string(block.Origin))

		var err error
		if stored, err = scanBlockRow(row); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE incidents SET status = $1 WHERE ip = $2 AND status = $3`,
			string(models.IncidentBlocked), block.IP, string(models.IncidentWatching),
		); err != nil {
			return database.MapPostgresError(err)
		}

		return insertLog(ctx, tx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert block: %w", err)
	}
	return stored, nil
}

// Lift deletes every block for ip, reverts its BLOCKED incidents to
// WATCHING and appends entry. It returns the number of reverted incidents.
func (r *BlockRepository) Lift(ctx context.Context, ip string, entry *models.LogRecord) (int, error) {
	var reverted int
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM blocks WHERE ip = $1`, ip); err != nil {
			return database.MapPostgresError(err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE incidents SET status = $1 WHERE ip = $2 AND status = $3`,
			string(models.IncidentWatching), ip, string(models.IncidentBlocked),
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		reverted = int(tag.RowsAffected())

		return insertLog(ctx, tx, entry)
	})
	if err != nil {
		return 0, fmt.Errorf("lift block: %w", err)
	}
	return reverted, nil
}
