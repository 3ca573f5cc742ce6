package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bruteguard/internal/auth"
	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/BradenHooton/bruteguard/internal/services"
	pkghttp "github.com/BradenHooton/bruteguard/pkg/http"
)

// DashboardService is the read side of the dashboard.
type DashboardService interface {
	RecentLogs(ctx context.Context) ([]*models.LogRecord, error)
	AppendLog(ctx context.Context, entry *models.LogRecord) error
	Incidents(ctx context.Context) ([]*models.IncidentRecord, error)
	ResolveIncident(ctx context.Context, id, actor string) (*models.IncidentRecord, error)
	Blocks(ctx context.Context) ([]*models.BlockRecord, error)
	Chart(ctx context.Context) ([]models.ChartPoint, error)
	Summary(ctx context.Context) (*models.Summary, error)
}

// BlockService is the administrative side of the block engine.
type BlockService interface {
	BlockManually(ctx context.Context, req services.ManualBlock, actor string) (*models.BlockRecord, error)
	Unblock(ctx context.Context, id, actor string) error
}

// DashboardHandler serves logs, incidents, blocks and stats.
type DashboardHandler struct {
	service DashboardService
	blocks  BlockService
	logger  *slog.Logger
}

func NewDashboardHandler(service DashboardService, blocks BlockService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{service: service, blocks: blocks, logger: logger}
}

// RegisterRoutes registers the dashboard routes with the chi router
func (h *DashboardHandler) RegisterRoutes(router chi.Router) {
	router.Get("/logs", h.ListLogs)
	router.Post("/logs", h.AppendLog)

	router.Get("/incidents", h.ListIncidents)
	router.Post("/incidents/{id}/resolve", h.ResolveIncident)

	router.Get("/blocks", h.ListBlocks)
	router.Post("/blocks", h.CreateBlock)
	router.Delete("/blocks/{id}", h.DeleteBlock)

	router.Get("/stats", h.Stats)
	router.Get("/stats/summary", h.Summary)
}

// AppendLogRequest is a log record reported by the dashboard. Any id the
// client sends is ignored.
type AppendLogRequest struct {
	Timestamp time.Time       `json:"timestamp"`
	IP        string          `json:"ip" validate:"omitempty,ip"`
	User      string          `json:"user" validate:"max=255"`
	Message   string          `json:"message" validate:"required,max=1024"`
	Severity  models.Severity `json:"severity" validate:"required,oneof=INFO WARNING CRITICAL"`
	Country   string          `json:"country" validate:"max=64"`
}

// CreateBlockRequest is an administrator block. The origin is always MANUAL.
type CreateBlockRequest struct {
	IP       string `json:"ip" validate:"required,ip"`
	Reason   string `json:"reason" validate:"max=512"`
	Duration string `json:"duration" validate:"max=64"`
}

func (h *DashboardHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.RecentLogs(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list logs", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, nonNil(logs))
}

func (h *DashboardHandler) AppendLog(w http.ResponseWriter, r *http.Request) {
	var req AppendLogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	entry := &models.LogRecord{
		Timestamp: req.Timestamp,
		IP:        pkghttp.NormalizeIP(req.IP),
		User:      req.User,
		Message:   req.Message,
		Severity:  req.Severity,
		Country:   req.Country,
	}
	if err := h.service.AppendLog(r.Context(), entry); err != nil {
		writeServiceError(w, h.logger, "append log", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, pkghttp.SuccessResponse{Success: true, ID: entry.ID})
}

func (h *DashboardHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.service.Incidents(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list incidents", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, nonNil(incidents))
}

func (h *DashboardHandler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.ResolveIncident(r.Context(), chi.URLParam(r, "id"), auth.ActorFromRequest(r))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Incident not found")
			return
		}
		writeServiceError(w, h.logger, "resolve incident", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, incident)
}

func (h *DashboardHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.service.Blocks(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list blocks", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, nonNil(blocks))
}

func (h *DashboardHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	block, err := h.blocks.BlockManually(r.Context(), services.ManualBlock{
		IP:       pkghttp.NormalizeIP(req.IP),
		Reason:   req.Reason,
		Duration: req.Duration,
	}, auth.ActorFromRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, "create block", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, pkghttp.SuccessResponse{Success: true, ID: block.ID})
}

// DeleteBlock is idempotent: removing an id that is already gone succeeds.
func (h *DashboardHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	err := h.blocks.Unblock(r.Context(), chi.URLParam(r, "id"), auth.ActorFromRequest(r))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		writeServiceError(w, h.logger, "delete block", err)
		return
	}
	pkghttp.WriteSuccess(w)
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.Chart(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "stats", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, points)
}

func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "summary", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, summary)
}

// nonNil makes empty lists encode as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
