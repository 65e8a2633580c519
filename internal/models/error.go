package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Enrollment validation errors, surfaced to the host UI inline
	ErrInvalidPINFormat    = errors.New("pin must be 4 to 6 decimal digits")
	ErrEmptySecurityAnswer = errors.New("security answer must not be empty")
	ErrInvalidRecoveryInfo = errors.New("recovery email or phone is required")
	ErrTOTPNotPending      = errors.New("no pending totp enrollment")
	ErrUnknownMethod       = errors.New("unknown mfa method")
	ErrUnknownLevel        = errors.New("unknown security level")

	// Account state errors
	ErrAccountLocked = errors.New("account is temporarily locked")
	ErrNoSession     = errors.New("no active session")
)
