package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BradenHooton/bruteguard/internal/models"
)

type IncidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

const incidentColumns = `id, ip, attempts, first_attempt, last_attempt, country, status, isp, threat_score, usernames`

func scanIncident(scanner rowScanner) (*models.IncidentRecord, error) {
	var inc models.IncidentRecord
	var first, last, usernames string
	if err := scanner.Scan(&inc.ID, &inc.IP, &inc.Attempts, &first, &last,
		&inc.Country, &inc.Status, &inc.ISP, &inc.ThreatScore, &usernames); err != nil {
		return nil, mapError(err)
	}

	var err error
	if inc.FirstAttempt, err = parseTime(first); err != nil {
		return nil, err
	}
	if inc.LastAttempt, err = parseTime(last); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(usernames), &inc.Usernames); err != nil {
		return nil, fmt.Errorf("%w: decoding usernames: %v", models.ErrStorage, err)
	}
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
	encoded, err := json.Marshal(usernames)
	if err != nil {
		return fmt.Errorf("encoding usernames: %w", err)
	}

	_, err = q.ExecContext(ctx, `INSERT INTO incidents (`+incidentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.IP, inc.Attempts, formatTime(inc.FirstAttempt), formatTime(inc.LastAttempt),
		inc.Country, string(inc.Status), inc.ISP, inc.ThreatScore, string(encoded))
	return mapError(err)
}

func (r *IncidentRepository) List(ctx context.Context) ([]*models.IncidentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+incidentColumns+` FROM incidents ORDER BY id DESC`)
	if err != nil {
		return nil, mapError(err)
	}
	return collect(rows, scanIncident)
}

func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*models.IncidentRecord, error) {
	return scanIncident(r.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id))
}

func (r *IncidentRepository) Resolve(ctx context.Context, id string) (*models.IncidentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE incidents SET status = ? WHERE id = ? RETURNING `+incidentColumns,
		string(models.IncidentResolved), id)
	return scanIncident(row)
}

func (r *IncidentRepository) CountActive(ctx context.Context) (int, error) {
	return countQuery(ctx, r.db, `SELECT COUNT(*) FROM incidents WHERE status <> ?`, string(models.IncidentResolved))
}
