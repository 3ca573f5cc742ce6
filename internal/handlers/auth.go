package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bruteguard/internal/services"
	pkghttp "github.com/BradenHooton/bruteguard/pkg/http"
)

// LoginGate is the request-time checkpoint, satisfied by *services.AuthGate.
type LoginGate interface {
	Login(ctx context.Context, ip, username, password string) (*services.LoginResult, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	gate     LoginGate
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(gate LoginGate, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{gate: gate, ipConfig: ipConfig, logger: logger}
}

// LoginRequest represents the request body for login. Empty fields are
// not rejected here: they count as a failed attempt.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginUser is the account summary returned on success.
type LoginUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// LoginResponse covers every login outcome.
type LoginResponse struct {
	Success   bool       `json:"success"`
	Token     string     `json:"token,omitempty"`
	User      *LoginUser `json:"user,omitempty"`
	Blocked   bool       `json:"blocked,omitempty"`
	Message   string     `json:"message,omitempty"`
	Remaining int        `json:"remaining,omitempty"`
}

const (
	msgSourceBlocked = "Your IP address is blocked. Contact an administrator."
	msgNowBlocked    = "Too many failed attempts. Your IP address has been blocked."
)

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.gate.Login(r.Context(), ip, req.Username, req.Password)
	if err != nil {
		h.logger.Error("login failed", slog.String("ip", ip), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	switch result.Outcome {
	case services.OutcomeAccepted:
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
			Success: true,
			Token:   result.Token,
			User:    &LoginUser{ID: result.User.ID, Username: result.User.Username},
		})
	case services.OutcomeRejectedBlocked:
		pkghttp.WriteJSON(w, http.StatusForbidden, LoginResponse{Blocked: true, Message: msgSourceBlocked})
	case services.OutcomeRejectedNowBlocked:
		pkghttp.WriteJSON(w, http.StatusForbidden, LoginResponse{Blocked: true, Message: msgNowBlocked})
	default:
		pkghttp.WriteJSON(w, http.StatusUnauthorized, LoginResponse{
			Message:   fmt.Sprintf("Invalid username or password. Remaining attempts: %d", result.Remaining),
			Remaining: result.Remaining,
		})
	}
}
