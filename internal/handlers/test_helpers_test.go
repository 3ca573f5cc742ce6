package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/bruteguard/internal/auth"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/BradenHooton/bruteguard/internal/services"
	pkghttp "github.com/BradenHooton/bruteguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds session claims to the request context
func WithAuthContext(req *http.Request, userID, username string) *http.Request {
	claims := &models.TokenClaims{
		Type:     models.TokenTypeSession,
		UserID:   userID,
		Username: username,
	}
	return req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
}

// WithChiURLParam sets a chi route parameter for handlers invoked directly
func WithChiURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockLoginGate implements LoginGate for testing
type MockLoginGate struct {
	LoginFunc func(ctx context.Context, ip, username, password string) (*services.LoginResult, error)
}

func (m *MockLoginGate) Login(ctx context.Context, ip, username, password string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return &services.LoginResult{Outcome: services.OutcomeRejectedInvalid}, nil
	}
	return m.LoginFunc(ctx, ip, username, password)
}

// MockDashboardService implements DashboardService for testing
type MockDashboardService struct {
	RecentLogsFunc      func(ctx context.Context) ([]*models.LogRecord, error)
	AppendLogFunc       func(ctx context.Context, entry *models.LogRecord) error
	IncidentsFunc       func(ctx context.Context) ([]*models.IncidentRecord, error)
	ResolveIncidentFunc func(ctx context.Context, id, actor string) (*models.IncidentRecord, error)
	BlocksFunc          func(ctx context.Context) ([]*models.BlockRecord, error)
	ChartFunc           func(ctx context.Context) ([]models.ChartPoint, error)
	SummaryFunc         func(ctx context.Context) (*models.Summary, error)
}

func (m *MockDashboardService) RecentLogs(ctx context.Context) ([]*models.LogRecord, error) {
	if m.RecentLogsFunc == nil {
		return nil, nil
	}
	return m.RecentLogsFunc(ctx)
}

func (m *MockDashboardService) AppendLog(ctx context.Context, entry *models.LogRecord) error {
	if m.AppendLogFunc == nil {
		entry.ID = "log-1"
		return nil
	}
	return m.AppendLogFunc(ctx, entry)
}

func (m *MockDashboardService) Incidents(ctx context.Context) ([]*models.IncidentRecord, error) {
	if m.IncidentsFunc == nil {
		return nil, nil
	}
	return m.IncidentsFunc(ctx)
}

func (m *MockDashboardService) ResolveIncident(ctx context.Context, id, actor string) (*models.IncidentRecord, error) {
	if m.ResolveIncidentFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ResolveIncidentFunc(ctx, id, actor)
}

func (m *MockDashboardService) Blocks(ctx context.Context) ([]*models.BlockRecord, error) {
	if m.BlocksFunc == nil {
		return nil, nil
	}
	return m.BlocksFunc(ctx)
}

func (m *MockDashboardService) Chart(ctx context.Context) ([]models.ChartPoint, error) {
	if m.ChartFunc == nil {
		return services.BucketHourly([24]int{}), nil
	}
	return m.ChartFunc(ctx)
}

func (m *MockDashboardService) Summary(ctx context.Context) (*models.Summary, error) {
	if m.SummaryFunc == nil {
		return &models.Summary{}, nil
	}
	return m.SummaryFunc(ctx)
}

// MockBlockService implements BlockService for testing
type MockBlockService struct {
	BlockManuallyFunc func(ctx context.Context, req services.ManualBlock, actor string) (*models.BlockRecord, error)
	UnblockFunc       func(ctx context.Context, id, actor string) error
}

func (m *MockBlockService) BlockManually(ctx context.Context, req services.ManualBlock, actor string) (*models.BlockRecord, error) {
	if m.BlockManuallyFunc == nil {
		return &models.BlockRecord{ID: "block-1", IP: req.IP, Origin: models.BlockOriginManual}, nil
	}
	return m.BlockManuallyFunc(ctx, req, actor)
}

func (m *MockBlockService) Unblock(ctx context.Context, id, actor string) error {
	if m.UnblockFunc == nil {
		return models.ErrNotFound
	}
	return m.UnblockFunc(ctx, id, actor)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	ListUsersFunc  func(ctx context.Context) ([]*models.User, error)
	CreateUserFunc func(ctx context.Context, username, password, actor string) (*models.User, error)
	DeleteUserFunc func(ctx context.Context, id, actor string) error
}

func (m *MockUserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx)
}

func (m *MockUserService) CreateUser(ctx context.Context, username, password, actor string) (*models.User, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(ctx, username, password, actor)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id, actor string) error {
	if m.DeleteUserFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteUserFunc(ctx, id, actor)
}

// MockSettingsService implements SettingsService for testing
type MockSettingsService struct {
	AllFunc    func(ctx context.Context) (map[string]string, error)
	UpdateFunc func(ctx context.Context, values map[string]string, actor string) error
}

func (m *MockSettingsService) All(ctx context.Context) (map[string]string, error) {
	if m.AllFunc == nil {
		return map[string]string{}, nil
	}
	return m.AllFunc(ctx)
}

func (m *MockSettingsService) Update(ctx context.Context, values map[string]string, actor string) error {
	if m.UpdateFunc == nil {
		return nil
	}
	return m.UpdateFunc(ctx, values, actor)
}
