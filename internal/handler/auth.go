package handler

import (
	"log/slog"
	"net/http"

	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	audit       *audit.Logger
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, auditLog *audit.Logger, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		audit:       auditLog,
		logger:      logger,
	}
}

// RegisterRequest represents registration request
type RegisterRequest struct {
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	Password  string         `json:"password"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Client    *ClientPayload `json:"client,omitempty"`
}

// LoginRequest accepts either the username or the email as login
type LoginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest represents a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	update, err := req.Client.toUpdate()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Client:    update.Overrides(),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.audit.LogRegistration(r.Context(), result.UserID, result.ClientID)
	writeJSON(w, h.logger, http.StatusCreated, result)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	login := req.Login
	if login == "" {
		login = req.Username
	}
	if login == "" {
		login = req.Email
	}

	result, err := h.authService.Login(r.Context(), login, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	if err := h.authService.Logout(r.Context(), claims.SessionID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authService.ChangePassword(r.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit.LogAction(r.Context(), claims.UserID, "change_password", "user", "", "success", "")
	w.WriteHeader(http.StatusNoContent)
}
