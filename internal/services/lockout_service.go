package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/calebwray/vaultgate/internal/clock"
	"github.com/calebwray/vaultgate/internal/models"
	"github.com/calebwray/vaultgate/internal/repositories"
	pkglogger "github.com/calebwray/vaultgate/pkg/logger"
)

// LockoutConfig holds brute-force lockout settings.
type LockoutConfig struct {
	MaxFailedAttempts uint
	LockoutDuration   time.Duration
}

// DefaultLockoutConfig returns the standard thresholds: five failures,
// five-minute lock.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   5 * time.Minute,
	}
}

// LockoutService tracks consecutive failed attempts per user and
// enforces a temporary lock window. The lock is checked lazily: an
// expired lock is cleared on the next observation. The failure counter
// resets only on a fully successful authentication.
type LockoutService struct {
	store    repositories.CredentialStore
	clk      clock.Clock
	config   LockoutConfig
	events   *Events
	notifier Notifier
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewLockoutService creates a LockoutService.
func NewLockoutService(
	store repositories.CredentialStore,
	clk clock.Clock,
	config LockoutConfig,
	events *Events,
	notifier Notifier,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *LockoutService {
	return &LockoutService{
		store:    store,
		clk:      clk,
		config:   config,
		events:   events,
		notifier: notifier,
		logger:   logger,
		audit:    audit,
	}
}

// Check reports whether the user is currently locked and, if so, how
// long remains. An observed-expired lock window is cleared in place.
func (s *LockoutService) Check(ctx context.Context, username string) (bool, time.Duration, error) {
	state, err := s.store.GetLockout(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, 0, nil
		}
		return false, 0, err
	}

	now := s.clk.Now()
	if locked, remaining := state.LockedAt(now); locked {
		return true, remaining, nil
	}

	if state.LockoutUntil != nil {
		// Lock window elapsed; clear the timestamp. The failure
		// counter survives until a successful authentication.
		state.LockoutUntil = nil
		if err := s.store.PutLockout(ctx, username, state); err != nil {
			return false, 0, err
		}
		s.logger.Info("lockout window expired", slog.String("username", username))
	}

	return false, 0, nil
}

// RecordFailure increments the failure counter and locks the account
// when the threshold is reached.
func (s *LockoutService) RecordFailure(ctx context.Context, username string) error {
	state, err := s.store.GetLockout(ctx, username)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		state = &models.LockoutState{}
	}

	state.FailedAttempts++

	if state.FailedAttempts >= s.config.MaxFailedAttempts {
		until := s.clk.Now().Add(s.config.LockoutDuration)
		state.LockoutUntil = &until

		if err := s.store.PutLockout(ctx, username, state); err != nil {
			return err
		}

		s.logger.Warn("account locked",
			slog.String("username", username),
			slog.Uint64("failed_attempts", uint64(state.FailedAttempts)),
			slog.Duration("lockout_duration", s.config.LockoutDuration))
		s.audit.LogAuthEvent(pkglogger.AuditEvent{
			EventType: "account_locked",
			Username:  username,
			Success:   false,
		})

		if s.events.OnAccountLocked != nil {
			s.events.OnAccountLocked(AccountLockedEvent{
				Username:        username,
				FailedAttempts:  state.FailedAttempts,
				LockoutDuration: s.config.LockoutDuration,
				LockoutUntil:    until,
			})
		}

		s.notifyLockout(ctx, username, until)
		return nil
	}

	if err := s.store.PutLockout(ctx, username, state); err != nil {
		return err
	}

	s.logger.Info("authentication failure recorded",
		slog.String("username", username),
		slog.Uint64("failed_attempts", uint64(state.FailedAttempts)))
	return nil
}

// RecordSuccess zeroes the failure counter and clears any lock.
func (s *LockoutService) RecordSuccess(ctx context.Context, username string) error {
	return s.store.PutLockout(ctx, username, &models.LockoutState{})
}

// notifyLockout sends a best-effort lockout notice to the user's
// recovery email. Delivery failures never affect the auth flow.
func (s *LockoutService) notifyLockout(ctx context.Context, username string, until time.Time) {
	profile, err := s.store.GetProfile(ctx, username)
	if err != nil || profile.RecoveryEmail == nil {
		return
	}
	if err := s.notifier.SendLockoutNotice(ctx, *profile.RecoveryEmail, username, until); err != nil {
		s.logger.Error("failed to send lockout notice", slog.Any("error", err))
	}
}
