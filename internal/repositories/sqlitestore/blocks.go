package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BradenHooton/bruteguard/internal/models"
)

type BlockRepository struct {
	db *sql.DB
}

func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

const blockColumns = `id, ip, reason, created_at, duration, origin`

func scanBlock(scanner rowScanner) (*models.BlockRecord, error) {
	var block models.BlockRecord
	var ts string
	if err := scanner.Scan(&block.ID, &block.IP, &block.Reason, &ts, &block.Duration, &block.Origin); err != nil {
		return nil, mapError(err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	block.Timestamp = t
	return &block, nil
}

func (r *BlockRepository) GetByIP(ctx context.Context, ip string) (*models.BlockRecord, error) {
	return scanBlock(r.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE ip = ?`, ip))
}

func (r *BlockRepository) GetByID(ctx context.Context, id string) (*models.BlockRecord, error) {
	return scanBlock(r.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id))
}

func (r *BlockRepository) List(ctx context.Context) ([]*models.BlockRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+blockColumns+` FROM blocks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, mapError(err)
	}
	return collect(rows, scanBlock)
}

func (r *BlockRepository) Count(ctx context.Context) (int, error) {
	return countQuery(ctx, r.db, `SELECT COUNT(*) FROM blocks`)
}

func (r *BlockRepository) CreateWithIncident(ctx context.Context, block *models.BlockRecord, incident *models.IncidentRecord, entry *models.LogRecord) error {
	if block.ID == "" {
		block.ID = models.NewID()
	}
	if incident.ID == "" {
		incident.ID = models.NewID()
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO blocks (`+blockColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (ip) DO NOTHING
		`, block.ID, block.IP, block.Reason, formatTime(block.Timestamp), block.Duration, string(block.Origin))
		if err != nil {
			return mapError(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrConflict
		}

		if err := insertIncident(ctx, tx, incident); err != nil {
			return err
		}
		return insertLog(ctx, tx, entry)
	})
}

func (r *BlockRepository) Upsert(ctx context.Context, block *models.BlockRecord, entry *models.LogRecord) (*models.BlockRecord, error) {
	if block.ID == "" {
		block.ID = models.NewID()
	}

	var stored *models.BlockRecord
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO blocks (`+blockColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (ip) DO UPDATE SET
				reason = excluded.reason,
				created_at = excluded.created_at,
				duration = excluded.duration,
				origin = excluded.origin
			RETURNING `+blockColumns,
			block.ID, block.IP, block.Reason, formatTime(block.Timestamp), block.Duration, string(block.Origin))

		var err error
		if stored, err = scanBlock(row); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE incidents SET status = ? WHERE ip = ? AND status = ?`,
			string(models.IncidentBlocked), block.IP, string(models.IncidentWatching)); err != nil {
			return mapError(err)
		}
		return insertLog(ctx, tx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert block: %w", err)
	}
	return stored, nil
}

func (r *BlockRepository) Lift(ctx context.Context, ip string, entry *models.LogRecord) (int, error) {
	var reverted int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE ip = ?`, ip); err != nil {
			return mapError(err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE incidents SET status = ? WHERE ip = ? AND status = ?`,
			string(models.IncidentWatching), ip, string(models.IncidentBlocked))
		if err != nil {
			return mapError(err)
		}
		reverted, _ = res.RowsAffected()

		return insertLog(ctx, tx, entry)
	})
	if err != nil {
		return 0, fmt.Errorf("lift block: %w", err)
	}
	return int(reverted), nil
}
