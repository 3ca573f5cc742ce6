package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bruteguard/internal/auth"
	"github.com/BradenHooton/bruteguard/internal/notify"
	pkghttp "github.com/BradenHooton/bruteguard/pkg/http"
)

// SettingsService reads and writes runtime settings.
type SettingsService interface {
	All(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, values map[string]string, actor string) error
}

type SettingsHandler struct {
	service SettingsService
	logger  *slog.Logger
}

func NewSettingsHandler(service SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{service: service, logger: logger}
}

// UpdateSettingsRequest carries the notification credentials. Absent fields
// are left untouched.
type UpdateSettingsRequest struct {
	TelegramBotToken *string `json:"telegram_bot_token" validate:"omitnil,max=256"`
	TelegramChatID   *string `json:"telegram_chat_id" validate:"omitnil,max=64"`
}

func (h *SettingsHandler) RegisterRoutes(router chi.Router) {
	router.Get("/settings", h.GetSettings)
	router.Post("/settings", h.UpdateSettings)
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.All(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "get settings", err)
		return
	}
	if settings == nil {
		settings = map[string]string{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	values := make(map[string]string, 2)
	if req.TelegramBotToken != nil {
		values[notify.SettingTelegramBotToken] = *req.TelegramBotToken
	}
	if req.TelegramChatID != nil {
		values[notify.SettingTelegramChatID] = *req.TelegramChatID
	}

	if len(values) > 0 {
		if err := h.service.Update(r.Context(), values, auth.ActorFromRequest(r)); err != nil {
			writeServiceError(w, h.logger, "update settings", err)
			return
		}
	}
	pkghttp.WriteSuccess(w)
}
