package models

import "time"

// ErrorCode is the typed failure taxonomy surfaced to callers.
// All codes are non-fatal; nothing is thrown past the orchestrator.
type ErrorCode string

const (
	CodeAccountLocked         ErrorCode = "ACCOUNT_LOCKED"
	CodeBiometricFailed       ErrorCode = "BIOMETRIC_FAILED"
	CodeInvalidPIN            ErrorCode = "INVALID_PIN"
	CodeInvalidTOTP           ErrorCode = "INVALID_TOTP"
	CodeInvalidSecurityAnswer ErrorCode = "INVALID_SECURITY_ANSWER"
	CodeMissingFactors        ErrorCode = "MISSING_FACTORS"
	CodeAuthError             ErrorCode = "AUTH_ERROR"
)

// AuthAttempt carries the supplied factor values for one authentication
// call. It is ephemeral and never persisted. RequestID links a follow-up
// submission to an earlier MISSING_FACTORS response.
type AuthAttempt struct {
	Username       string
	PIN            string
	TOTP           string
	SecurityAnswer string
	RequestID      string

	// ClientIP is the caller's network address when the attempt arrives
	// over HTTP. Audit-only; empty for embedded hosts.
	ClientIP string
}

// FactorValue returns the supplied value for the given method, and
// whether one was supplied at all.
func (a *AuthAttempt) FactorValue(m MFAMethod) (string, bool) {
	switch m {
	case MethodPIN:
		return a.PIN, a.PIN != ""
	case MethodTOTP:
		return a.TOTP, a.TOTP != ""
	case MethodSecurityQuestion:
		return a.SecurityAnswer, a.SecurityAnswer != ""
	}
	return "", false
}

// AuthResult is the terminal outcome of one authentication attempt.
type AuthResult struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`

	SessionToken               string     `json:"session_token,omitempty"`
	ExpiresAt                  *time.Time `json:"expires_at,omitempty"`
	RequiresDeviceVerification bool       `json:"requires_device_verification,omitempty"`

	Error   ErrorCode `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`

	// Populated on MISSING_FACTORS so the caller can re-invoke with the
	// additional values.
	RequiredFactors []string `json:"required_factors,omitempty"`
	RequestID       string   `json:"request_id,omitempty"`

	// Populated on ACCOUNT_LOCKED.
	RemainingLockTime int64 `json:"remaining_lock_time,omitempty"`
}

// TOTPEnrollment is returned by SetupTOTP for provisioning an
// authenticator app. The secret is shown once and stored only sealed.
type TOTPEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodeDataURL   string `json:"qr_code_data_url"`
}
