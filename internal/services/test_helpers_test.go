package services

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/bruteguard/internal/metrics"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/BradenHooton/bruteguard/internal/notify"
	pkgauth "github.com/BradenHooton/bruteguard/pkg/auth"
)

// memLedger is an in-memory ledger with the same transactional semantics
// as the SQL repositories.
type memLedger struct {
	mu        sync.Mutex
	logs      []*models.LogRecord
	blocks    []*models.BlockRecord
	incidents []*models.IncidentRecord
	users     []*models.User
	settings  map[string]string

	appendErr      error
	getByIPErr     error
	createDelay    time.Duration
	creates        int
	usernameLookup int
}

func newMemLedger() *memLedger {
	return &memLedger{settings: make(map[string]string)}
}

func (m *memLedger) Ledger() Ledger {
	return Ledger{
		Logs:      memLogs{m},
		Blocks:    memBlocks{m},
		Incidents: memIncidents{m},
		Users:     memUsers{m},
		Settings:  memSettings{m},
	}
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

type memLogs struct{ m *memLedger }

func (r memLogs) Append(_ context.Context, entry *models.LogRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.appendErr != nil {
		return r.m.appendErr
	}
	r.m.logs = append(r.m.logs, clone(entry))
	return nil
}

func (r memLogs) ListRecent(_ context.Context, limit int) ([]*models.LogRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.LogRecord, 0, limit)
	for i := len(r.m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(r.m.logs[i]))
	}
	return out, nil
}

func (r memLogs) HourlyCounts(_ context.Context) ([24]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var counts [24]int
	for _, l := range r.m.logs {
		counts[l.Timestamp.UTC().Hour()]++
	}
	return counts, nil
}

func (r memLogs) CountBySeverity(_ context.Context, severities ...models.Severity) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, l := range r.m.logs {
		if slices.Contains(severities, l.Severity) {
			n++
		}
	}
	return n, nil
}

type memBlocks struct{ m *memLedger }

func (r memBlocks) find(ip string) int {
	return slices.IndexFunc(r.m.blocks, func(b *models.BlockRecord) bool { return b.IP == ip })
}

func (r memBlocks) GetByIP(_ context.Context, ip string) (*models.BlockRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.getByIPErr != nil {
		return nil, r.m.getByIPErr
	}
	if i := r.find(ip); i >= 0 {
		return clone(r.m.blocks[i]), nil
	}
	return nil, models.ErrNotFound
}

func (r memBlocks) GetByID(_ context.Context, id string) (*models.BlockRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, b := range r.m.blocks {
		if b.ID == id {
			return clone(b), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r memBlocks) List(_ context.Context) ([]*models.BlockRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.BlockRecord, 0, len(r.m.blocks))
	for i := len(r.m.blocks) - 1; i >= 0; i-- {
		out = append(out, clone(r.m.blocks[i]))
	}
	return out, nil
}

func (r memBlocks) Count(_ context.Context) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return len(r.m.blocks), nil
}

func (r memBlocks) CreateWithIncident(_ context.Context, block *models.BlockRecord, incident *models.IncidentRecord, entry *models.LogRecord) error {
	if r.m.createDelay > 0 {
		time.Sleep(r.m.createDelay)
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.find(block.IP) >= 0 {
		return models.ErrConflict
	}
	r.m.creates++
	r.m.blocks = append(r.m.blocks, clone(block))
	r.m.incidents = append(r.m.incidents, clone(incident))
	r.m.logs = append(r.m.logs, clone(entry))
	return nil
}

func (r memBlocks) Upsert(_ context.Context, block *models.BlockRecord, entry *models.LogRecord) (*models.BlockRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	saved := clone(block)
	if i := r.find(block.IP); i >= 0 {
		saved.ID = r.m.blocks[i].ID
		r.m.blocks[i] = saved
	} else {
		r.m.blocks = append(r.m.blocks, saved)
	}
	for _, inc := range r.m.incidents {
		if inc.IP == block.IP && inc.Status == models.IncidentWatching {
			inc.Status = models.IncidentBlocked
		}
	}
	r.m.logs = append(r.m.logs, clone(entry))
	return clone(saved), nil
}

func (r memBlocks) Lift(_ context.Context, ip string, entry *models.LogRecord) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	before := len(r.m.blocks)
	r.m.blocks = slices.DeleteFunc(r.m.blocks, func(b *models.BlockRecord) bool { return b.IP == ip })
	for _, inc := range r.m.incidents {
		if inc.IP == ip && inc.Status == models.IncidentBlocked {
			inc.Status = models.IncidentWatching
		}
	}
	r.m.logs = append(r.m.logs, clone(entry))
	return before - len(r.m.blocks), nil
}

type memIncidents struct{ m *memLedger }

func (r memIncidents) List(_ context.Context) ([]*models.IncidentRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.IncidentRecord, 0, len(r.m.incidents))
	for i := len(r.m.incidents) - 1; i >= 0; i-- {
		out = append(out, clone(r.m.incidents[i]))
	}
	return out, nil
}

func (r memIncidents) GetByID(_ context.Context, id string) (*models.IncidentRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, inc := range r.m.incidents {
		if inc.ID == id {
			return clone(inc), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r memIncidents) Resolve(_ context.Context, id string) (*models.IncidentRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, inc := range r.m.incidents {
		if inc.ID == id {
			inc.Status = models.IncidentResolved
			return clone(inc), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r memIncidents) CountActive(_ context.Context) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, inc := range r.m.incidents {
		if inc.Status != models.IncidentResolved {
			n++
		}
	}
	return n, nil
}

type memUsers struct{ m *memLedger }

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.ID == id {
			return clone(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.usernameLookup++
	for _, u := range r.m.users {
		if u.Username == username {
			return clone(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r memUsers) List(_ context.Context) ([]*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.User, 0, len(r.m.users))
	for _, u := range r.m.users {
		out = append(out, clone(u))
	}
	return out, nil
}

func (r memUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Username == user.Username {
			return nil, models.ErrConflict
		}
	}
	r.m.users = append(r.m.users, clone(user))
	return clone(user), nil
}

func (r memUsers) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	before := len(r.m.users)
	r.m.users = slices.DeleteFunc(r.m.users, func(u *models.User) bool { return u.ID == id })
	if len(r.m.users) == before {
		return models.ErrNotFound
	}
	return nil
}

func (r memUsers) Count(_ context.Context) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return len(r.m.users), nil
}

type memSettings struct{ m *memLedger }

func (r memSettings) Get(_ context.Context, key string) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.settings[key]
	if !ok {
		return "", models.ErrNotFound
	}
	return v, nil
}

func (r memSettings) GetAll(_ context.Context) (map[string]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make(map[string]string, len(r.m.settings))
	for k, v := range r.m.settings {
		out[k] = v
	}
	return out, nil
}

func (r memSettings) SetMany(_ context.Context, values map[string]string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for k, v := range values {
		r.m.settings[k] = v
	}
	return nil
}

// snapshot helpers

func (m *memLedger) blockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

func (m *memLedger) allLogs() []*models.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.logs)
}

func (m *memLedger) allIncidents() []*models.IncidentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.IncidentRecord, 0, len(m.incidents))
	for _, inc := range m.incidents {
		out = append(out, clone(inc))
	}
	return out
}

func (m *memLedger) addUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPasswordWithCost(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &models.User{ID: models.NewID(), Username: username, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.users = append(m.users, u)
	m.mu.Unlock()
	return u
}

type staticGeo struct{ loc models.GeoLocation }

func (g staticGeo) Lookup(string) models.GeoLocation { return g.loc }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(evt notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.events)
}

type stubSessions struct{ err error }

func (s stubSessions) GenerateSessionToken(userID, username string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token-" + username, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// guard wires the core services over a memLedger.
type guard struct {
	ledger   *memLedger
	tracker  *AttemptTracker
	engine   *BlockEngine
	gate     *AuthGate
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newGuard(t *testing.T) *guard {
	t.Helper()
	ledger := newMemLedger()
	geo := staticGeo{models.GeoLocation{Country: "DE", ISP: "Example Hosting"}}
	logger := discardLogger()
	m := metrics.New()
	notifier := &recordingNotifier{}
	locks := NewSourceLocker()

	tracker := NewAttemptTracker(ledger.Ledger().Logs, geo, TrackerConfig{MaxFailedAttempts: 5, CriticalAfterAttempts: 3}, logger, m)
	engine := NewBlockEngine(ledger.Ledger().Blocks, tracker, locks, geo, notifier, "10m", logger, nil, m)
	gate := NewAuthGate(ledger.Ledger(), tracker, engine, locks, geo, stubSessions{}, nil, logger, nil, m)

	return &guard{ledger: ledger, tracker: tracker, engine: engine, gate: gate, notifier: notifier, metrics: m}
}
