package models

import (
	"time"
)

// MFAMethod identifies an additional verification factor.
// The platform biometric check is implicit and always required;
// it is never represented as an MFAMethod.
type MFAMethod string

const (
	MethodPIN              MFAMethod = "pin"
	MethodTOTP             MFAMethod = "totp"
	MethodSecurityQuestion MFAMethod = "securityQuestion"
	MethodEmail            MFAMethod = "email"
)

// FactorOrder is the fixed deterministic ordering used both for
// "first enabled method" policy selection and for validation order.
var FactorOrder = []MFAMethod{MethodPIN, MethodTOTP, MethodSecurityQuestion}

// ValidMethod reports whether m is a recognized MFA method.
func ValidMethod(m MFAMethod) bool {
	switch m {
	case MethodPIN, MethodTOTP, MethodSecurityQuestion, MethodEmail:
		return true
	}
	return false
}

// SecurityLevel controls how many additional factors the policy requires.
type SecurityLevel string

const (
	LevelStandard SecurityLevel = "standard"
	LevelHigh     SecurityLevel = "high"
	LevelMaximum  SecurityLevel = "maximum"
)

// ValidSecurityLevel reports whether l is a recognized security level.
func ValidSecurityLevel(l SecurityLevel) bool {
	switch l {
	case LevelStandard, LevelHigh, LevelMaximum:
		return true
	}
	return false
}

// UserAuthProfile is the per-user MFA configuration record, keyed by
// username. It is persisted whole; partial updates go through
// read-modify-write on the full record.
type UserAuthProfile struct {
	Username      string        `json:"username"`
	MFAEnabled    bool          `json:"mfa_enabled"`
	MFAMethods    []MFAMethod   `json:"mfa_methods"`
	SecurityLevel SecurityLevel `json:"security_level"`

	PINHash *string `json:"pin_hash,omitempty"`

	// TOTP secret is sealed with AES-256-GCM before storage.
	// TOTPPending is set during enrollment and cleared once the first
	// valid code confirms the authenticator app is provisioned.
	TOTPSecretEncrypted []byte `json:"totp_secret_encrypted,omitempty"`
	TOTPSecretNonce     []byte `json:"totp_secret_nonce,omitempty"`
	TOTPPending         bool   `json:"totp_pending,omitempty"`

	SecurityQuestion   *string `json:"security_question,omitempty"`
	SecurityAnswerHash *string `json:"security_answer_hash,omitempty"`

	RecoveryEmail *string `json:"recovery_email,omitempty"`
	RecoveryPhone *string `json:"recovery_phone,omitempty"`

	TrustedDevices []TrustedDevice `json:"trusted_devices"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasMethod reports whether the given method is enabled on the profile.
func (p *UserAuthProfile) HasMethod(m MFAMethod) bool {
	for _, enabled := range p.MFAMethods {
		if enabled == m {
			return true
		}
	}
	return false
}

// AddMethod enables a method on the profile if not already present.
func (p *UserAuthProfile) AddMethod(m MFAMethod) {
	if !p.HasMethod(m) {
		p.MFAMethods = append(p.MFAMethods, m)
	}
}

// EnabledInOrder returns the enabled validatable methods in the fixed
// factor ordering. MethodEmail is a recovery channel, not a login factor,
// so it never appears here.
func (p *UserAuthProfile) EnabledInOrder() []MFAMethod {
	var out []MFAMethod
	for _, m := range FactorOrder {
		if p.HasMethod(m) {
			out = append(out, m)
		}
	}
	return out
}

// TrustedDevice is a device fingerprint previously associated with a
// fully successful authentication.
type TrustedDevice struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	DisplayName string    `json:"display_name"`
	AddedAt     time.Time `json:"added_at"`
}

// LockoutState tracks consecutive failed attempts for one user.
type LockoutState struct {
	FailedAttempts uint       `json:"failed_attempts"`
	LockoutUntil   *time.Time `json:"lockout_until,omitempty"`
}

// LockedAt reports whether the state is locked as observed at now,
// and the remaining lock duration if so.
func (l *LockoutState) LockedAt(now time.Time) (bool, time.Duration) {
	if l.LockoutUntil == nil || !now.Before(*l.LockoutUntil) {
		return false, 0
	}
	return true, l.LockoutUntil.Sub(now)
}
