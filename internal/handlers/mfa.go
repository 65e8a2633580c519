package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calebwray/vaultgate/internal/middleware"
	"github.com/calebwray/vaultgate/internal/models"
	pkghttp "github.com/calebwray/vaultgate/pkg/http"
)

// EnrollmentService is the factor-enrollment surface used by the MFA
// handlers. The username always comes from the authenticated session,
// never from the request body.
type EnrollmentService interface {
	SetPIN(ctx context.Context, username, pin string) error
	SetupTOTP(ctx context.Context, username string) (*models.TOTPEnrollment, error)
	VerifyTOTPSetup(ctx context.Context, username, code string) error
	SetSecurityQuestion(ctx context.Context, username, question, answer string) error
	EnableRecovery(ctx context.Context, username, email, phone string) error
}

// MFAHandler handles factor enrollment requests.
type MFAHandler struct {
	enrollment EnrollmentService
}

// NewMFAHandler creates a new MFAHandler.
func NewMFAHandler(enrollment EnrollmentService) *MFAHandler {
	return &MFAHandler{enrollment: enrollment}
}

// SetPINRequest represents the request body for PIN enrollment
type SetPINRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

// VerifyTOTPRequest represents the request body for TOTP setup confirmation
type VerifyTOTPRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// SetSecurityQuestionRequest represents the request body for security question enrollment
type SetSecurityQuestionRequest struct {
	Question string `json:"question" validate:"required,min=8,max=200"`
	Answer   string `json:"answer" validate:"required,min=1,max=200"`
}

// EnableRecoveryRequest represents the request body for recovery contact setup
type EnableRecoveryRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,min=7,max=20"`
}

// SetPIN handles POST /mfa/pin
func (h *MFAHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "no active session")
		return
	}

	var req SetPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.enrollment.SetPIN(r.Context(), username, req.PIN); err != nil {
		writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetupTOTP handles POST /mfa/totp/setup
func (h *MFAHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "no active session")
		return
	}

	enrollment, err := h.enrollment.SetupTOTP(r.Context(), username)
	if err != nil {
		writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}

// VerifyTOTP handles POST /mfa/totp/verify
func (h *MFAHandler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "no active session")
		return
	}

	var req VerifyTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.enrollment.VerifyTOTPSetup(r.Context(), username, req.Code); err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "invalid code")
			return
		}
		writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetSecurityQuestion handles POST /mfa/security-question
func (h *MFAHandler) SetSecurityQuestion(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "no active session")
		return
	}

	var req SetSecurityQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.enrollment.SetSecurityQuestion(r.Context(), username, req.Question, req.Answer); err != nil {
		writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// EnableRecovery handles POST /mfa/recovery
func (h *MFAHandler) EnableRecovery(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "no active session")
		return
	}

	var req EnableRecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.enrollment.EnableRecovery(r.Context(), username, req.Email, req.Phone); err != nil {
		writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeEnrollmentError maps enrollment sentinel errors onto responses.
func writeEnrollmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "user not registered")
	case errors.Is(err, models.ErrInvalidPINFormat),
		errors.Is(err, models.ErrEmptySecurityAnswer),
		errors.Is(err, models.ErrInvalidRecoveryInfo),
		errors.Is(err, models.ErrTOTPNotPending):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		pkghttp.WriteInternalError(w, "enrollment failed")
	}
}
