package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calebwray/vaultgate/internal/models"
	"github.com/calebwray/vaultgate/internal/services"
	pkghttp "github.com/calebwray/vaultgate/pkg/http"
)

// AuthEngine is the orchestrator surface the auth handlers need.
type AuthEngine interface {
	Authenticate(ctx context.Context, attempt models.AuthAttempt) models.AuthResult
	Logout(ctx context.Context) error
	GetActiveSession(ctx context.Context) (*models.Session, error)
	SetSessionTimeout(minutes int)
	SetExpiryWarningTime(seconds int)
}

// RegistrationService is the enrollment surface used for sign-up.
type RegistrationService interface {
	Register(ctx context.Context, username string, opts services.RegisterOptions) error
}

// AuthHandler exposes the authentication engine over HTTP.
type AuthHandler struct {
	engine     AuthEngine
	enrollment RegistrationService
	ipConfig   *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(engine AuthEngine, enrollment RegistrationService, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{engine: engine, enrollment: enrollment, ipConfig: ipConfig}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username      string   `json:"username" validate:"required,min=1,max=64"`
	MFAEnabled    bool     `json:"mfa_enabled"`
	SecurityLevel string   `json:"security_level" validate:"omitempty,oneof=standard high maximum"`
	MFAMethods    []string `json:"mfa_methods" validate:"dive,oneof=pin totp securityQuestion email"`
	RecoveryEmail string   `json:"recovery_email" validate:"omitempty,email"`
	RecoveryPhone string   `json:"recovery_phone" validate:"omitempty,min=7,max=20"`
}

// AuthenticateRequest represents the request body for authentication
type AuthenticateRequest struct {
	Username       string `json:"username" validate:"required"`
	PIN            string `json:"pin,omitempty"`
	TOTP           string `json:"totp,omitempty"`
	SecurityAnswer string `json:"security_answer,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

// SessionSettingsRequest adjusts session lifecycle settings
type SessionSettingsRequest struct {
	TimeoutMinutes int `json:"timeout_minutes" validate:"omitempty,min=1,max=1440"`
	WarningSeconds int `json:"warning_seconds" validate:"omitempty,min=5,max=3600"`
}

// SessionResponse describes the active session without exposing the token
type SessionResponse struct {
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	methods := make([]models.MFAMethod, 0, len(req.MFAMethods))
	for _, m := range req.MFAMethods {
		methods = append(methods, models.MFAMethod(m))
	}

	err := h.enrollment.Register(r.Context(), req.Username, services.RegisterOptions{
		MFAEnabled:    req.MFAEnabled,
		SecurityLevel: models.SecurityLevel(req.SecurityLevel),
		MFAMethods:    methods,
		RecoveryEmail: req.RecoveryEmail,
		RecoveryPhone: req.RecoveryPhone,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "username already registered")
		case errors.Is(err, models.ErrBadRequest),
			errors.Is(err, models.ErrUnknownLevel),
			errors.Is(err, models.ErrUnknownMethod):
			pkghttp.WriteBadRequest(w, err.Error())
		default:
			pkghttp.WriteInternalError(w, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// Authenticate handles POST /auth/authenticate
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result := h.engine.Authenticate(r.Context(), models.AuthAttempt{
		Username:       req.Username,
		PIN:            req.PIN,
		TOTP:           req.TOTP,
		SecurityAnswer: req.SecurityAnswer,
		RequestID:      req.RequestID,
		ClientIP:       pkghttp.ExtractClientIP(r, h.ipConfig),
	})

	writeJSON(w, statusForResult(result), result)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context()); err != nil {
		pkghttp.WriteInternalError(w, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetSession handles GET /auth/session
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.GetActiveSession(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrNoSession) {
			pkghttp.WriteUnauthorized(w, "no active session")
			return
		}
		pkghttp.WriteInternalError(w, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Username:  session.Username,
		CreatedAt: session.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt: session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// UpdateSessionSettings handles PUT /auth/session/settings
func (h *AuthHandler) UpdateSessionSettings(w http.ResponseWriter, r *http.Request) {
	var req SessionSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if req.TimeoutMinutes > 0 {
		h.engine.SetSessionTimeout(req.TimeoutMinutes)
	}
	if req.WarningSeconds > 0 {
		h.engine.SetExpiryWarningTime(req.WarningSeconds)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// statusForResult maps the result taxonomy onto HTTP status codes.
func statusForResult(result models.AuthResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Error {
	case models.CodeAccountLocked:
		return http.StatusLocked
	case models.CodeMissingFactors:
		return http.StatusUnprocessableEntity
	case models.CodeAuthError:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	pkghttp.WriteJSON(w, status, v)
}
