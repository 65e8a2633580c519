package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/calebwray/vaultgate/internal/auth"
	"github.com/calebwray/vaultgate/internal/models"
)

// FactorValidator verifies one additional authentication factor
// against the stored profile. Validate returns false on a mismatch;
// an error means the check could not be performed at all.
type FactorValidator interface {
	Name() models.MFAMethod
	Validate(ctx context.Context, profile *models.UserAuthProfile, value string) (bool, error)
}

// ErrorCodeFor maps a factor to its rejection code.
func ErrorCodeFor(m models.MFAMethod) models.ErrorCode {
	switch m {
	case models.MethodPIN:
		return models.CodeInvalidPIN
	case models.MethodTOTP:
		return models.CodeInvalidTOTP
	case models.MethodSecurityQuestion:
		return models.CodeInvalidSecurityAnswer
	}
	return models.CodeAuthError
}

var pinFormat = regexp.MustCompile(`^[0-9]{4,6}$`)

// ValidPINFormat reports whether pin is 4 to 6 decimal digits.
func ValidPINFormat(pin string) bool {
	return pinFormat.MatchString(pin)
}

// PINValidator compares a supplied PIN against the stored digest.
// PINs are stored as Digest(pin || username); the username acts as a
// per-user salt against precomputed tables.
type PINValidator struct{}

func (PINValidator) Name() models.MFAMethod { return models.MethodPIN }

func (PINValidator) Validate(ctx context.Context, profile *models.UserAuthProfile, value string) (bool, error) {
	if profile.PINHash == nil {
		return false, fmt.Errorf("no pin enrolled for %q", profile.Username)
	}
	if !ValidPINFormat(value) {
		return false, nil
	}
	supplied := auth.DigestStrings(value, profile.Username)
	return auth.ConstantTimeEqual(supplied, *profile.PINHash), nil
}

// TOTPValidator checks a six-digit code against the sealed secret
// using the standard 30-second time-step algorithm with ±1 skew.
type TOTPValidator struct {
	TOTP *auth.TOTPManager
}

func (TOTPValidator) Name() models.MFAMethod { return models.MethodTOTP }

func (v TOTPValidator) Validate(ctx context.Context, profile *models.UserAuthProfile, value string) (bool, error) {
	if len(profile.TOTPSecretEncrypted) == 0 {
		return false, fmt.Errorf("no totp secret enrolled for %q", profile.Username)
	}
	return v.TOTP.Validate(profile.TOTPSecretEncrypted, profile.TOTPSecretNonce, value)
}

// SecurityQuestionValidator compares a supplied answer, lowercased and
// trimmed, against the stored digest.
type SecurityQuestionValidator struct{}

func (SecurityQuestionValidator) Name() models.MFAMethod { return models.MethodSecurityQuestion }

func (SecurityQuestionValidator) Validate(ctx context.Context, profile *models.UserAuthProfile, value string) (bool, error) {
	if profile.SecurityAnswerHash == nil {
		return false, fmt.Errorf("no security answer enrolled for %q", profile.Username)
	}
	supplied := auth.DigestStrings(NormalizeAnswer(value), profile.Username)
	return auth.ConstantTimeEqual(supplied, *profile.SecurityAnswerHash), nil
}

// NormalizeAnswer canonicalizes a security answer for case-insensitive
// comparison.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
