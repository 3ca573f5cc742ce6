package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/BradenHooton/bruteguard/internal/models"
	pkglogger "github.com/BradenHooton/bruteguard/pkg/logger"
)

// SettingsService reads and writes the key/value settings table.
type SettingsService struct {
	repo        SettingsRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewSettingsService(repo SettingsRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SettingsService {
	if auditLogger == nil {
		auditLogger = pkglogger.NewAuditLogger(logger)
	}
	return &SettingsService{repo: repo, logger: logger, auditLogger: auditLogger}
}

// All returns every stored setting.
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	values, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return values, nil
}

// Update upserts values in one write. Keys are trimmed and must be
// non-empty.
func (s *SettingsService) Update(ctx context.Context, values map[string]string, actor string) error {
	clean := make(map[string]string, len(values))
	for k, v := range values {
		k = strings.TrimSpace(k)
		if k == "" {
			return fmt.Errorf("empty setting key: %w", models.ErrBadRequest)
		}
		clean[k] = v
	}
	if len(clean) == 0 {
		return nil
	}

	if err := s.repo.SetMany(ctx, clean); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	s.auditLogger.LogAccountAction("settings_updated", actor, "", map[string]string{"keys": strings.Join(keys, ",")})
	return nil
}

// Get satisfies notify.SettingsReader.
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	return s.repo.Get(ctx, key)
}
