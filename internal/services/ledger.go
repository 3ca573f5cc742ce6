package services

import (
	"context"

	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/BradenHooton/bruteguard/internal/notify"
)

// LogRepository is the append-only attempt log.
type LogRepository interface {
	Append(ctx context.Context, entry *models.LogRecord) error
	ListRecent(ctx context.Context, limit int) ([]*models.LogRecord, error)
	HourlyCounts(ctx context.Context) ([24]int, error)
	CountBySeverity(ctx context.Context, severities ...models.Severity) (int, error)
}

// BlockRepository stores block rules. CreateWithIncident, Upsert and Lift
// each commit their records together.
type BlockRepository interface {
	GetByIP(ctx context.Context, ip string) (*models.BlockRecord, error)
	GetByID(ctx context.Context, id string) (*models.BlockRecord, error)
	List(ctx context.Context) ([]*models.BlockRecord, error)
	Count(ctx context.Context) (int, error)
	CreateWithIncident(ctx context.Context, block *models.BlockRecord, incident *models.IncidentRecord, entry *models.LogRecord) error
	Upsert(ctx context.Context, block *models.BlockRecord, entry *models.LogRecord) (*models.BlockRecord, error)
	Lift(ctx context.Context, ip string, entry *models.LogRecord) (int, error)
}

// IncidentRepository stores incidents.
type IncidentRepository interface {
	List(ctx context.Context) ([]*models.IncidentRecord, error)
	GetByID(ctx context.Context, id string) (*models.IncidentRecord, error)
	Resolve(ctx context.Context, id string) (*models.IncidentRecord, error)
	CountActive(ctx context.Context) (int, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// SettingsRepository is the key/value settings table.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	GetAll(ctx context.Context) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
}

// Ledger groups the durable stores. Both the Postgres and the SQLite
// repositories satisfy it.
type Ledger struct {
	Logs      LogRepository
	Blocks    BlockRepository
	Incidents IncidentRepository
	Users     UserRepository
	Settings  SettingsRepository
}

// GeoLocator resolves a source address. Lookups never fail; unknown
// addresses come back with sentinel labels.
type GeoLocator interface {
	Lookup(ip string) models.GeoLocation
}

// Notifier accepts block events without waiting for delivery.
type Notifier interface {
	Notify(evt notify.Event)
}

// SessionIssuer signs dashboard session tokens.
type SessionIssuer interface {
	GenerateSessionToken(userID, username string) (string, error)
}

type unknownGeo struct{}

func (unknownGeo) Lookup(string) models.GeoLocation {
	return models.GeoLocation{Country: models.CountryUnknown, ISP: models.ISPUnknown}
}

type discardNotifier struct{}

func (discardNotifier) Notify(notify.Event) {}
