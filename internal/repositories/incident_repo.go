package repositories

import (
	"context"

	"github.com/BradenHooton/bruteguard/internal/database"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/jackc/pgx/v5"
)

type IncidentRepository struct {
	db *database.DB
}

func NewIncidentRepository(db *database.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

const incidentColumns = `id, ip, attempts, first_attempt, last_attempt, country, status, isp, threat_score, usernames`

func scanIncidentRow(scanner rowScanner) (*models.IncidentRecord, error) {
	var inc models.IncidentRecord
	if err := scanner.Scan(
		&inc.ID, &inc.IP, &inc.Attempts, &inc.FirstAttempt, &inc.LastAttempt,
		&inc.Country, &inc.Status, &inc.ISP, &inc.ThreatScore, &inc.Usernames,
	); err != nil {
		return nil, database.MapPostgresError(err)
	}
	inc.FirstAttempt = inc.FirstAttempt.UTC()
	inc.LastAttempt = inc.LastAttempt.UTC()
	if inc.Usernames == nil {
		inc.Usernames = []string{}
	}
	return &inc, nil
}

func insertIncident(ctx context.Context, q execer, inc *models.IncidentRecord) error {
	usernames := inc.Usernames
	if usernames == nil {
		usernames = []string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, inc.ID, inc.IP, inc.Attempts, inc.FirstAttempt, inc.LastAttempt,
		inc.Country, string(inc.Status), inc.ISP, inc.ThreatScore, usernames)
	return database.MapPostgresError(err)
}

// List returns all incidents, newest first.
func (r *IncidentRepository) List(ctx context.Context) ([]*models.IncidentRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents ORDER BY id DESC`)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.IncidentRecord, error) {
		return scanIncidentRow(row)
	})
}

func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*models.IncidentRecord, error) {
	return scanIncidentRow(r.db.Pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
}

// Resolve marks an incident RESOLVED and returns the updated record.
func (r *IncidentRepository) Resolve(ctx context.Context, id string) (*models.IncidentRecord, error) {
	row := r.db.Pool.QueryRow(ctx,
		`UPDATE incidents SET status = $1 WHERE id = $2 RETURNING `+incidentColumns,
		string(models.IncidentResolved), id)
	return scanIncidentRow(row)
}

// CountActive counts incidents that are not RESOLVED.
func (r *IncidentRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM incidents WHERE status <> $1`, string(models.IncidentResolved),
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}
