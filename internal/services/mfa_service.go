package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/calebwray/vaultgate/internal/auth"
	"github.com/calebwray/vaultgate/internal/clock"
	"github.com/calebwray/vaultgate/internal/models"
	"github.com/calebwray/vaultgate/internal/repositories"
	pkglogger "github.com/calebwray/vaultgate/pkg/logger"
)

// MFAService handles registration and factor enrollment. Every
// operation returns an error value the host UI can render inline;
// nothing panics and nothing throws past this boundary.
type MFAService struct {
	store    repositories.CredentialStore
	totp     *auth.TOTPManager
	clk      clock.Clock
	notifier Notifier
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewMFAService creates a new MFA enrollment service.
func NewMFAService(
	store repositories.CredentialStore,
	totp *auth.TOTPManager,
	clk clock.Clock,
	notifier Notifier,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *MFAService {
	return &MFAService{
		store:    store,
		totp:     totp,
		clk:      clk,
		notifier: notifier,
		logger:   logger,
		audit:    audit,
	}
}

// RegisterOptions configures a new user's auth profile.
type RegisterOptions struct {
	MFAEnabled    bool
	SecurityLevel models.SecurityLevel
	MFAMethods    []models.MFAMethod
	RecoveryEmail string
	RecoveryPhone string
}

// Register creates the auth profile for a new username. Registering an
// existing username returns models.ErrConflict.
func (s *MFAService) Register(ctx context.Context, username string, opts RegisterOptions) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.ErrBadRequest
	}

	if opts.SecurityLevel == "" {
		opts.SecurityLevel = models.LevelStandard
	}
	if !models.ValidSecurityLevel(opts.SecurityLevel) {
		return models.ErrUnknownLevel
	}
	for _, m := range opts.MFAMethods {
		if !models.ValidMethod(m) {
			return models.ErrUnknownMethod
		}
	}

	_, err := s.store.GetProfile(ctx, username)
	if err == nil {
		return models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing profile", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := s.clk.Now()
	profile := &models.UserAuthProfile{
		Username:       username,
		MFAEnabled:     opts.MFAEnabled,
		MFAMethods:     opts.MFAMethods,
		SecurityLevel:  opts.SecurityLevel,
		TrustedDevices: []models.TrustedDevice{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if opts.RecoveryEmail != "" {
		profile.RecoveryEmail = &opts.RecoveryEmail
	}
	if opts.RecoveryPhone != "" {
		profile.RecoveryPhone = &opts.RecoveryPhone
	}

	if err := s.store.PutProfile(ctx, profile); err != nil {
		s.logger.Error("failed to create profile", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user registered",
		slog.String("username", username),
		slog.String("security_level", string(opts.SecurityLevel)))
	s.audit.LogAccountAction("user_registered", username, nil)
	return nil
}

// SetPIN enrolls or replaces a user's PIN. The format constraint is
// enforced before any hash is computed or stored.
func (s *MFAService) SetPIN(ctx context.Context, username, pin string) error {
	if !ValidPINFormat(pin) {
		return models.ErrInvalidPINFormat
	}

	return s.updateProfile(ctx, username, func(profile *models.UserAuthProfile) error {
		hash := auth.DigestStrings(pin, username)
		profile.PINHash = &hash
		profile.AddMethod(models.MethodPIN)
		s.audit.LogAccountAction("pin_enrolled", username, nil)
		return nil
	})
}

// SetupTOTP begins TOTP enrollment: a fresh secret is generated and
// sealed, and the provisioning URI plus QR code are returned for the
// authenticator app. The method is not enabled until the first valid
// code is confirmed through VerifyTOTPSetup.
func (s *MFAService) SetupTOTP(ctx context.Context, username string) (*models.TOTPEnrollment, error) {
	enrollment, err := s.totp.GenerateEnrollment(username)
	if err != nil {
		s.logger.Error("failed to generate TOTP enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	err = s.updateProfile(ctx, username, func(profile *models.UserAuthProfile) error {
		profile.TOTPSecretEncrypted = enrollment.EncryptedSecret
		profile.TOTPSecretNonce = enrollment.Nonce
		profile.TOTPPending = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("totp enrollment initiated", slog.String("username", username))
	return &models.TOTPEnrollment{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCodeDataURL:   enrollment.QRCodeDataURL,
	}, nil
}

// VerifyTOTPSetup confirms a pending TOTP enrollment with a first
// valid code and enables the method.
func (s *MFAService) VerifyTOTPSetup(ctx context.Context, username, code string) error {
	return s.updateProfile(ctx, username, func(profile *models.UserAuthProfile) error {
		if !profile.TOTPPending {
			return models.ErrTOTPNotPending
		}

		valid, err := s.totp.Validate(profile.TOTPSecretEncrypted, profile.TOTPSecretNonce, code)
		if err != nil {
			s.logger.Error("totp validation error during setup", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !valid {
			return models.ErrUnauthorized
		}

		profile.TOTPPending = false
		profile.AddMethod(models.MethodTOTP)
		s.audit.LogAccountAction("totp_enrolled", username, nil)
		return nil
	})
}

// SetSecurityQuestion enrolls a security question. The question is
// stored in clear; the answer only as a salted digest of its
// lowercased form.
func (s *MFAService) SetSecurityQuestion(ctx context.Context, username, question, answer string) error {
	question = strings.TrimSpace(question)
	if question == "" || NormalizeAnswer(answer) == "" {
		return models.ErrEmptySecurityAnswer
	}

	return s.updateProfile(ctx, username, func(profile *models.UserAuthProfile) error {
		hash := auth.DigestStrings(NormalizeAnswer(answer), username)
		profile.SecurityQuestion = &question
		profile.SecurityAnswerHash = &hash
		profile.AddMethod(models.MethodSecurityQuestion)
		s.audit.LogAccountAction("security_question_enrolled", username, nil)
		return nil
	})
}

// EnableRecovery stores a recovery contact and sends a best-effort
// confirmation to the new address.
func (s *MFAService) EnableRecovery(ctx context.Context, username, email, phone string) error {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return models.ErrInvalidRecoveryInfo
	}

	err := s.updateProfile(ctx, username, func(profile *models.UserAuthProfile) error {
		if email != "" {
			profile.RecoveryEmail = &email
		}
		if phone != "" {
			profile.RecoveryPhone = &phone
		}
		s.audit.LogAccountAction("recovery_enabled", username, nil)
		return nil
	})
	if err != nil {
		return err
	}

	if email != "" {
		s.logger.Info("recovery contact set",
			slog.String("username", username),
			slog.String("email", pkglogger.SanitizedEmail(email)))
		if err := s.notifier.SendRecoveryConfirmation(ctx, email, username); err != nil {
			s.logger.Error("failed to send recovery confirmation", slog.Any("error", err))
		}
	}
	return nil
}

// GetProfile returns the stored profile for a username.
func (s *MFAService) GetProfile(ctx context.Context, username string) (*models.UserAuthProfile, error) {
	return s.store.GetProfile(ctx, username)
}

// updateProfile applies a read-modify-write on the whole profile
// record, bumping UpdatedAt on success.
func (s *MFAService) updateProfile(ctx context.Context, username string, mutate func(*models.UserAuthProfile) error) error {
	profile, err := s.store.GetProfile(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := mutate(profile); err != nil {
		return err
	}

	profile.UpdatedAt = s.clk.Now()
	if err := s.store.PutProfile(ctx, profile); err != nil {
		s.logger.Error("failed to store profile", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
