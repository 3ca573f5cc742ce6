package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bruteguard/internal/handlers"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/BradenHooton/bruteguard/internal/services"
	pkghttp "github.com/BradenHooton/bruteguard/pkg/http"
)

func TestListLogs_EmptyIsArray(t *testing.T) {
	h := handlers.NewDashboardHandler(&handlers.MockDashboardService{}, &handlers.MockBlockService{}, handlers.DiscardLogger())
	w := httptest.NewRecorder()

	h.ListLogs(w, handlers.NewTestRequest(t, http.MethodGet, "/logs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestListLogs_StorageError(t *testing.T) {
	svc := &handlers.MockDashboardService{
		RecentLogsFunc: func(ctx context.Context) ([]*models.LogRecord, error) {
			return nil, models.ErrStorage
		},
	}
	h := handlers.NewDashboardHandler(svc, &handlers.MockBlockService{}, handlers.DiscardLogger())
	w := httptest.NewRecorder()

	h.ListLogs(w, handlers.NewTestRequest(t, http.MethodGet, "/logs", nil))

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestAppendLog(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{
			name:       "valid",
			body:       map[string]any{"id": "ignored", "ip": "10.0.0.1", "user": "bob", "message": "scan", "severity": "WARNING"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown severity",
			body:       map[string]any{"message": "scan", "severity": "DEBUG"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing message",
			body:       map[string]any{"severity": "INFO"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad ip",
			body:       map[string]any{"ip": "not-an-ip", "message": "scan", "severity": "INFO"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *models.LogRecord
			svc := &handlers.MockDashboardService{
				AppendLogFunc: func(ctx context.Context, entry *models.LogRecord) error {
					got = entry
					entry.ID = "server-id"
					return nil
				},
			}
			h := handlers.NewDashboardHandler(svc, &handlers.MockBlockService{}, handlers.DiscardLogger())
			w := httptest.NewRecorder()

			h.AppendLog(w, handlers.NewTestRequest(t, http.MethodPost, "/logs", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var resp pkghttp.SuccessResponse
				handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
				assert.True(t, resp.Success)
				assert.Equal(t, "server-id", resp.ID)
				require.NotNil(t, got)
				assert.Equal(t, models.SeverityWarning, got.Severity)
				assert.Equal(t, "10.0.0.1", got.IP)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestResolveIncident(t *testing.T) {
	var gotID, gotActor string
	svc := &handlers.MockDashboardService{
		ResolveIncidentFunc: func(ctx context.Context, id, actor string) (*models.IncidentRecord, error) {
			gotID, gotActor = id, actor
			return &models.IncidentRecord{ID: id, Status: models.IncidentResolved}, nil
		},
	}
	h := handlers.NewDashboardHandler(svc, &handlers.MockBlockService{}, handlers.DiscardLogger())

	req := handlers.NewTestRequest(t, http.MethodPost, "/incidents/inc-1/resolve", nil)
	req = handlers.WithAuthContext(req, "u1", "alice")
	req = handlers.WithChiURLParam(req, "id", "inc-1")
	w := httptest.NewRecorder()

	h.ResolveIncident(w, req)

	var resp models.IncidentRecord
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.IncidentResolved, resp.Status)
	assert.Equal(t, "inc-1", gotID)
	assert.Equal(t, "alice", gotActor)
}

func TestResolveIncident_NotFound(t *testing.T) {
	h := handlers.NewDashboardHandler(&handlers.MockDashboardService{}, &handlers.MockBlockService{}, handlers.DiscardLogger())
	req := handlers.WithChiURLParam(handlers.NewTestRequest(t, http.MethodPost, "/incidents/x/resolve", nil), "id", "x")
	w := httptest.NewRecorder()

	h.ResolveIncident(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestCreateBlock(t *testing.T) {
	var got services.ManualBlock
	var gotActor string
	blocks := &handlers.MockBlockService{
		BlockManuallyFunc: func(ctx context.Context, req services.ManualBlock, actor string) (*models.BlockRecord, error) {
			got, gotActor = req, actor
			return &models.BlockRecord{ID: "b-9", IP: req.IP, Origin: models.BlockOriginManual}, nil
		},
	}
	h := handlers.NewDashboardHandler(&handlers.MockDashboardService{}, blocks, handlers.DiscardLogger())

	body := map[string]string{"ip": "198.51.100.7", "reason": "scanner", "duration": "24h", "type": "AUTO"}
	req := handlers.WithAuthContext(handlers.NewTestRequest(t, http.MethodPost, "/blocks", body), "u1", "alice")
	w := httptest.NewRecorder()

	h.CreateBlock(w, req)

	var resp pkghttp.SuccessResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "b-9", resp.ID)
	assert.Equal(t, services.ManualBlock{IP: "198.51.100.7", Reason: "scanner", Duration: "24h"}, got)
	assert.Equal(t, "alice", gotActor)
}

func TestCreateBlock_Validation(t *testing.T) {
	called := false
	blocks := &handlers.MockBlockService{
		BlockManuallyFunc: func(ctx context.Context, req services.ManualBlock, actor string) (*models.BlockRecord, error) {
			called = true
			return nil, nil
		},
	}
	h := handlers.NewDashboardHandler(&handlers.MockDashboardService{}, blocks, handlers.DiscardLogger())

	for _, body := range []map[string]string{{}, {"ip": "300.1.1.1"}} {
		w := httptest.NewRecorder()
		h.CreateBlock(w, handlers.NewTestRequest(t, http.MethodPost, "/blocks", body))
		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	}
	assert.False(t, called)
}

func TestDeleteBlock(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "lifted", wantStatus: http.StatusOK},
		{name: "already removed", err: models.ErrNotFound, wantStatus: http.StatusOK},
		{name: "storage failure", err: errors.New("disk full"), wantStatus: http.StatusInternalServerError, wantError: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := &handlers.MockBlockService{
				UnblockFunc: func(ctx context.Context, id, actor string) error {
					assert.Equal(t, "b-1", id)
					return tt.err
				},
			}
			h := handlers.NewDashboardHandler(&handlers.MockDashboardService{}, blocks, handlers.DiscardLogger())
			req := handlers.WithChiURLParam(handlers.NewTestRequest(t, http.MethodDelete, "/blocks/b-1", nil), "id", "b-1")
			w := httptest.NewRecorder()

			h.DeleteBlock(w, req)

			if tt.wantError != "" {
				handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantError)
				return
			}
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, `{"success":true}`, w.Body.String())
		})
	}
}

func TestListBlocks(t *testing.T) {
	ts := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc := &handlers.MockDashboardService{
		BlocksFunc: func(ctx context.Context) ([]*models.BlockRecord, error) {
			return []*models.BlockRecord{{ID: "b1", IP: "10.0.0.5", Reason: "r", Timestamp: ts, Duration: "10m", Origin: models.BlockOriginAuto}}, nil
		},
	}
	h := handlers.NewDashboardHandler(svc, &handlers.MockBlockService{}, handlers.DiscardLogger())
	w := httptest.NewRecorder()

	h.ListBlocks(w, handlers.NewTestRequest(t, http.MethodGet, "/blocks", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"b1","ip":"10.0.0.5","reason":"r","timestamp":"2026-05-04T10:00:00Z","duration":"10m","type":"AUTO"}]`, w.Body.String())
}

func TestStats(t *testing.T) {
	h := handlers.NewDashboardHandler(&handlers.MockDashboardService{}, &handlers.MockBlockService{}, handlers.DiscardLogger())
	w := httptest.NewRecorder()

	h.Stats(w, handlers.NewTestRequest(t, http.MethodGet, "/stats", nil))

	var points []models.ChartPoint
	handlers.AssertJSONResponse(t, w, http.StatusOK, &points)
	require.Len(t, points, 6)
	assert.Equal(t, "00:00", points[0].Time)
	assert.Equal(t, "20:00", points[5].Time)
}

func TestSummary(t *testing.T) {
	svc := &handlers.MockDashboardService{
		SummaryFunc: func(ctx context.Context) (*models.Summary, error) {
			return &models.Summary{ActiveIncidents: 2, BlockedIPs: 3, TotalAttacks: 41}, nil
		},
	}
	h := handlers.NewDashboardHandler(svc, &handlers.MockBlockService{}, handlers.DiscardLogger())
	w := httptest.NewRecorder()

	h.Summary(w, handlers.NewTestRequest(t, http.MethodGet, "/stats/summary", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activeIncidents":2,"blockedIps":3,"totalAttacks":41}`, w.Body.String())
}
