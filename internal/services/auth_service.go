package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/calebwray/vaultgate/internal/auth"
	"github.com/calebwray/vaultgate/internal/models"
	"github.com/calebwray/vaultgate/internal/repositories"
	pkglogger "github.com/calebwray/vaultgate/pkg/logger"
	"github.com/google/uuid"
)

// AuthService is the authentication orchestrator: the only component
// the host application calls to authenticate. One call runs the whole
// unit - lockout gate, biometric first factor, policy-selected
// additional factors, trusted-device bookkeeping, session creation -
// under a per-username lock so concurrent hosts cannot interleave two
// attempts against the same user's state.
type AuthService struct {
	store     repositories.CredentialStore
	lockout   *LockoutService
	devices   *DeviceService
	sessions  *SessionService
	biometric auth.BiometricAuthenticator
	identity  *auth.DeviceIdentity
	events    *Events
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger

	validators map[models.MFAMethod]FactorValidator

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewAuthService wires the orchestrator. The validator set must cover
// every validatable MFA method.
func NewAuthService(
	store repositories.CredentialStore,
	lockout *LockoutService,
	devices *DeviceService,
	sessions *SessionService,
	biometric auth.BiometricAuthenticator,
	identity *auth.DeviceIdentity,
	totp *auth.TOTPManager,
	events *Events,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		store:     store,
		lockout:   lockout,
		devices:   devices,
		sessions:  sessions,
		biometric: biometric,
		identity:  identity,
		events:    events,
		logger:    logger,
		audit:     audit,
		validators: map[models.MFAMethod]FactorValidator{
			models.MethodPIN:              PINValidator{},
			models.MethodTOTP:             TOTPValidator{TOTP: totp},
			models.MethodSecurityQuestion: SecurityQuestionValidator{},
		},
		locks: make(map[string]*sync.Mutex),
	}
}

// Initialize reports whether a biometric first factor is available on
// this device.
func (s *AuthService) Initialize(ctx context.Context) bool {
	available := s.biometric.Available(ctx)
	s.logger.Info("auth engine initialized",
		slog.Bool("biometric_available", available),
		slog.String("device_fingerprint", s.identity.Fingerprint()))
	return available
}

// Authenticate runs one authentication attempt to a terminal result.
// It never returns a Go error; every outcome, including internal
// failures, is normalized into the AuthResult taxonomy.
func (s *AuthService) Authenticate(ctx context.Context, attempt models.AuthAttempt) models.AuthResult {
	username := strings.TrimSpace(attempt.Username)
	clientIP := attempt.ClientIP
	if username == "" {
		return s.reject(username, clientIP, models.CodeAuthError, "username is required")
	}

	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	// Lockout gate. A locked account never reaches the biometric
	// authenticator, so lock state cannot be probed through it.
	locked, remaining, err := s.lockout.Check(ctx, username)
	if err != nil {
		return s.internalFailure(ctx, username, clientIP, err)
	}
	if locked {
		result := s.reject(username, clientIP, models.CodeAccountLocked, "account is temporarily locked")
		result.RemainingLockTime = int64(remaining.Seconds())
		return result
	}

	// First factor: platform biometric.
	ok, err := s.biometric.Verify(ctx, username)
	if err != nil {
		return s.internalFailure(ctx, username, clientIP, fmt.Errorf("biometric check failed: %w", err))
	}
	if !ok {
		s.recordFailure(ctx, username)
		return s.reject(username, clientIP, models.CodeBiometricFailed, "biometric verification failed")
	}

	profile, err := s.store.GetProfile(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown users fail like any other bad credential so the
			// engine does not become a username oracle.
			s.recordFailure(ctx, username)
			return s.reject(username, clientIP, models.CodeAuthError, "authentication failed")
		}
		return s.internalFailure(ctx, username, clientIP, err)
	}

	fingerprint := s.identity.Fingerprint()
	required, err := s.requiredFactors(ctx, profile, fingerprint)
	if err != nil {
		return s.internalFailure(ctx, username, clientIP, err)
	}

	// Multi-round trip: a missing value is not a failed attempt, the
	// caller just has not supplied everything yet.
	var missing []string
	for _, m := range required {
		if _, supplied := attempt.FactorValue(m); !supplied {
			missing = append(missing, string(m))
		}
	}
	if len(missing) > 0 {
		requestID := attempt.RequestID
		if requestID == "" {
			requestID = uuid.New().String()
		}
		result := s.reject(username, clientIP, models.CodeMissingFactors, "additional factors required")
		result.RequiredFactors = missing
		result.RequestID = requestID
		return result
	}

	// Validate in the fixed factor order; first failure terminates.
	for _, m := range required {
		value, _ := attempt.FactorValue(m)
		valid, err := s.validators[m].Validate(ctx, profile, value)
		if err != nil {
			return s.internalFailure(ctx, username, clientIP, err)
		}
		if !valid {
			s.recordFailure(ctx, username)
			return s.reject(username, clientIP, ErrorCodeFor(m), fmt.Sprintf("%s verification failed", m))
		}
	}

	return s.accept(ctx, profile, fingerprint, clientIP)
}

// accept completes a fully successful attempt: counters reset, device
// trusted, session created.
func (s *AuthService) accept(ctx context.Context, profile *models.UserAuthProfile, fingerprint, clientIP string) models.AuthResult {
	username := profile.Username

	if err := s.lockout.RecordSuccess(ctx, username); err != nil {
		return s.internalFailure(ctx, username, clientIP, err)
	}

	newlyTrusted, err := s.devices.Add(ctx, username, fingerprint, deviceDisplayName())
	if err != nil {
		return s.internalFailure(ctx, username, clientIP, err)
	}

	session, err := s.sessions.Create(ctx, username)
	if err != nil {
		return s.internalFailure(ctx, username, clientIP, err)
	}

	s.logger.Info("authentication succeeded",
		slog.String("username", username),
		slog.Bool("newly_trusted_device", newlyTrusted))
	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType: "auth_success",
		Username:  username,
		IPAddress: clientIP,
		Success:   true,
	})
	if s.events.OnAuthSuccess != nil {
		s.events.OnAuthSuccess(AuthSuccessEvent{
			Username:     username,
			SessionToken: session.Token,
			ExpiresAt:    session.ExpiresAt,
		})
	}

	expires := session.ExpiresAt
	return models.AuthResult{
		Success:                    true,
		Username:                   username,
		SessionToken:               session.Token,
		ExpiresAt:                  &expires,
		RequiresDeviceVerification: newlyTrusted,
	}
}

// requiredFactors computes the additional factor set from the security
// level and current trust state. Biometric is implicit and excluded.
func (s *AuthService) requiredFactors(ctx context.Context, profile *models.UserAuthProfile, fingerprint string) ([]models.MFAMethod, error) {
	if !profile.MFAEnabled {
		return nil, nil
	}

	switch profile.SecurityLevel {
	case models.LevelMaximum:
		return profile.EnabledInOrder(), nil

	case models.LevelHigh:
		enabled := profile.EnabledInOrder()
		if len(enabled) == 0 {
			return nil, nil
		}
		return enabled[:1], nil

	default: // standard
		trusted, err := s.devices.IsTrusted(ctx, profile.Username, fingerprint)
		if err != nil {
			return nil, err
		}
		if trusted {
			return nil, nil
		}
		return []models.MFAMethod{models.MethodPIN}, nil
	}
}

// reject builds a failure result and fires the failure event.
func (s *AuthService) reject(username, clientIP string, code models.ErrorCode, message string) models.AuthResult {
	s.audit.LogAuthEvent(pkglogger.AuditEvent{
		EventType:     "auth_failure",
		Username:      username,
		IPAddress:     clientIP,
		FailureReason: string(code),
		Success:       false,
	})
	if s.events.OnAuthFailure != nil {
		s.events.OnAuthFailure(AuthFailureEvent{
			Username:  username,
			ErrorCode: string(code),
			Message:   message,
		})
	}
	return models.AuthResult{
		Success:  false,
		Username: username,
		Error:    code,
		Message:  message,
	}
}

// internalFailure normalizes an unexpected error to AUTH_ERROR. It
// still counts toward lockout: an attacker must not get free attempts
// by inducing store failures.
func (s *AuthService) internalFailure(ctx context.Context, username, clientIP string, err error) models.AuthResult {
	s.logger.Error("authentication error",
		slog.String("username", username),
		slog.Any("error", err))
	s.recordFailure(ctx, username)
	return s.reject(username, clientIP, models.CodeAuthError, "authentication failed")
}

// recordFailure is best-effort; a store that cannot even record a
// failure is logged, not surfaced.
func (s *AuthService) recordFailure(ctx context.Context, username string) {
	if username == "" {
		return
	}
	if err := s.lockout.RecordFailure(ctx, username); err != nil {
		s.logger.Error("failed to record auth failure", slog.Any("error", err))
	}
}

// Logout invalidates the active session synchronously.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.sessions.Invalidate(ctx)
}

// GetActiveSession returns the valid current session, if any.
func (s *AuthService) GetActiveSession(ctx context.Context) (*models.Session, error) {
	return s.sessions.GetActive(ctx)
}

// SetSessionTimeout adjusts the session timeout at runtime.
func (s *AuthService) SetSessionTimeout(minutes int) {
	s.sessions.SetTimeout(time.Duration(minutes) * time.Minute)
}

// SetExpiryWarningTime adjusts the pre-expiry warning window.
func (s *AuthService) SetExpiryWarningTime(seconds int) {
	s.sessions.SetWarningTime(time.Duration(seconds) * time.Second)
}

// GetTrustedDevices lists the user's trusted devices.
func (s *AuthService) GetTrustedDevices(ctx context.Context, username string) ([]models.TrustedDevice, error) {
	return s.devices.List(ctx, username)
}

// RemoveTrustedDevice removes one fingerprint from the registry.
func (s *AuthService) RemoveTrustedDevice(ctx context.Context, username, fingerprint string) (bool, error) {
	return s.devices.Remove(ctx, username, fingerprint)
}

// userLock returns the mutex guarding one username's auth state.
func (s *AuthService) userLock(username string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[username]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[username] = lock
	}
	return lock
}

// deviceDisplayName labels a newly trusted device in the registry.
func deviceDisplayName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return fmt.Sprintf("%s (%s)", hostname, runtime.GOOS)
}
