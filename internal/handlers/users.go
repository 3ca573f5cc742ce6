package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bruteguard/internal/auth"
	"github.com/BradenHooton/bruteguard/internal/models"
	pkgauth "github.com/BradenHooton/bruteguard/pkg/auth"
	pkghttp "github.com/BradenHooton/bruteguard/pkg/http"
)

// UserService defines the interface for user business logic
type UserService interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	CreateUser(ctx context.Context, username, password, actor string) (*models.User, error)
	DeleteUser(ctx context.Context, id, actor string) error
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// UserResponse never carries the password hash.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RegisterRoutes registers all user routes with the chi router
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Delete("/{id}", h.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list users", err)
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, UserResponse{ID: u.ID, Username: u.Username})
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		pkghttp.WriteBadRequest(w, "Username and password required")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.Username, req.Password, auth.ActorFromRequest(r))
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteBadRequest(w, "Username already exists")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Username and password required")
		case errors.As(err, &pwErr):
			details := ""
			if len(pwErr.Errors) > 0 {
				details = pwErr.Errors[0]
			}
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Password does not meet requirements", details)
		default:
			writeServiceError(w, h.logger, "create user", err)
		}
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, pkghttp.SuccessResponse{Success: true, ID: user.ID})
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id"), auth.ActorFromRequest(r))
	switch {
	case err == nil:
		pkghttp.WriteSuccess(w)
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "User not found")
	case errors.Is(err, models.ErrLastAccount):
		pkghttp.WriteBadRequest(w, "Cannot delete the last account")
	default:
		writeServiceError(w, h.logger, "delete user", err)
	}
}
