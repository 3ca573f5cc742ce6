package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/BradenHooton/bruteguard/pkg/auth"
	pkglogger "github.com/BradenHooton/bruteguard/pkg/logger"
)

// generatedPasswordLength is used when no bootstrap password is configured.
const generatedPasswordLength = 20

// UserService handles administrator accounts
type UserService struct {
	repo        UserRepository
	bcryptCost  int
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	if auditLogger == nil {
		auditLogger = pkglogger.NewAuditLogger(logger)
	}
	return &UserService{
		repo:        repo,
		bcryptCost:  auth.BcryptCost,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// ListUsers returns every account; hashes never leave the service layer
// because models.User does not serialise them.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CreateUser hashes password and stores a new account. A taken username
// returns models.ErrConflict.
func (s *UserService) CreateUser(ctx context.Context, username, password, actor string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, models.ErrBadRequest
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPasswordWithCost(password, s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.repo.Create(ctx, &models.User{
		ID:           models.NewID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.auditLogger.LogAccountAction("user_created", actor, username, nil)
	return user, nil
}

// DeleteUser removes an account. The last remaining account cannot be
// deleted, since nobody could sign in afterwards.
func (s *UserService) DeleteUser(ctx context.Context, id, actor string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count <= 1 {
		return models.ErrLastAccount
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.auditLogger.LogAccountAction("user_deleted", actor, user.Username, map[string]string{"user_id": id})
	return nil
}

// EnsureBootstrapUser seeds one account when none exist. With an empty
// password a random one is generated and logged once. It reports whether
// an account was created.
func (s *UserService) EnsureBootstrapUser(ctx context.Context, username, password string) (bool, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	generated := password == ""
	if generated {
		password, err = auth.GeneratePassword(generatedPasswordLength)
		if err != nil {
			return false, fmt.Errorf("generate password: %w", err)
		}
	}

	if _, err := s.CreateUser(ctx, username, password, models.SystemActor); err != nil {
		return false, fmt.Errorf("seed %s: %w", username, err)
	}

	if generated {
		s.logger.Warn("created bootstrap account with generated password; change it after first login",
			slog.String("username", username),
			slog.String("password", password),
		)
	} else {
		s.logger.Info("created bootstrap account", slog.String("username", username))
	}
	return true, nil
}
