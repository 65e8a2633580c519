package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/calebwray/vaultgate/internal/auth"
	"github.com/calebwray/vaultgate/internal/clock"
	"github.com/calebwray/vaultgate/internal/models"
	"github.com/calebwray/vaultgate/internal/repositories"
)

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	Timeout       time.Duration
	WarningWindow time.Duration
}

// DefaultSessionConfig returns the standard 30-minute timeout with a
// 60-second expiry warning.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timeout:       30 * time.Minute,
		WarningWindow: 60 * time.Second,
	}
}

// SessionService owns the single logical session for this
// device-process and the timers that drive its lifecycle:
//
//	NoSession -> Active -> WarningIssued -> Expired -> NoSession
//
// Active self-transitions on an explicit Extend; observed user
// activity never silently renews a session. At most one timer handle
// is outstanding at a time: the warning timer while Active, the expiry
// timer after the warning fires. Every state mutation stops the
// current handle first, and an epoch counter makes a timer that
// already fired against a replaced session a no-op.
type SessionService struct {
	store    repositories.CredentialStore
	identity *auth.DeviceIdentity
	clk      clock.Clock
	events   *Events
	logger   *slog.Logger

	mu      sync.Mutex
	config  SessionConfig
	current *models.Session
	timer   clock.Timer
	epoch   uint64
}

// NewSessionService creates a session manager in the NoSession state.
func NewSessionService(
	store repositories.CredentialStore,
	identity *auth.DeviceIdentity,
	clk clock.Clock,
	config SessionConfig,
	events *Events,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		store:    store,
		identity: identity,
		clk:      clk,
		events:   events,
		logger:   logger,
		config:   config,
	}
}

// SetTimeout changes the session timeout for sessions created or
// extended from now on.
func (s *SessionService) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Timeout = d
}

// SetWarningTime changes how long before expiry the warning fires.
func (s *SessionService) SetWarningTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.WarningWindow = d
}

// Create starts a new session for username, overwriting any prior
// persisted session slot.
func (s *SessionService) Create(ctx context.Context, username string) (*models.Session, error) {
	token, err := auth.NewSessionToken()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	session := &models.Session{
		Token:             token,
		Username:          username,
		DeviceFingerprint: s.identity.Fingerprint(),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.config.Timeout),
	}

	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, err
	}

	s.adoptLocked(session)
	s.logger.Info("session created",
		slog.String("username", username),
		slog.Time("expires_at", session.ExpiresAt))

	copied := *session
	return &copied, nil
}

// GetActive returns the current session if it is unexpired and bound
// to this device's fingerprint. A fresh process rehydrates the
// persisted slot here; a fingerprint mismatch clears the slot.
func (s *SessionService) GetActive(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		if err := s.rehydrateLocked(ctx); err != nil {
			return nil, err
		}
	}
	if s.current == nil {
		return nil, models.ErrNoSession
	}

	now := s.clk.Now()
	fingerprint := s.identity.Fingerprint()

	if s.current.DeviceFingerprint != fingerprint {
		s.logger.Warn("session bound to a different device, clearing",
			slog.String("username", s.current.Username))
		s.clearLocked(ctx)
		return nil, models.ErrNoSession
	}
	if !now.Before(s.current.ExpiresAt) {
		s.clearLocked(ctx)
		return nil, models.ErrNoSession
	}

	copied := *s.current
	return &copied, nil
}

// Authenticate resolves a bearer token against the active session.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if !auth.ConstantTimeEqual(session.Token, token) {
		return nil, models.ErrUnauthorized
	}
	return session, nil
}

// Extend refreshes the active session's expiry to now + timeout and
// re-arms the warning timer.
func (s *SessionService) Extend(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.clk.Now().Before(s.current.ExpiresAt) {
		return models.ErrNoSession
	}

	s.current.ExpiresAt = s.clk.Now().Add(s.config.Timeout)
	if err := s.store.PutSession(ctx, s.current); err != nil {
		return err
	}

	session := *s.current
	s.adoptLocked(&session)
	s.logger.Info("session extended", slog.Time("expires_at", session.ExpiresAt))
	return nil
}

// Invalidate ends the session synchronously: pending timers are
// cancelled and the persisted slot deleted. Logout path.
func (s *SessionService) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		// Still clear any stale persisted slot.
		return s.store.DeleteSession(ctx)
	}

	username := s.current.Username
	s.clearLocked(ctx)
	s.logger.Info("session invalidated", slog.String("username", username))
	return nil
}

// Resume rehydrates a persisted, still-valid session after a process
// restart and re-arms its timers.
func (s *SessionService) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rehydrateLocked(ctx)
}

// adoptLocked installs session as current and arms the next timer.
// Callers hold s.mu.
func (s *SessionService) adoptLocked(session *models.Session) {
	s.stopTimerLocked()
	s.epoch++
	s.current = session

	epoch := s.epoch
	now := s.clk.Now()
	warnAt := session.ExpiresAt.Add(-s.config.WarningWindow)

	if warnAt.After(now) {
		s.timer = s.clk.AfterFunc(warnAt.Sub(now), func() { s.onWarning(epoch) })
	} else {
		// Window already entered; go straight to the expiry timer.
		s.timer = s.clk.AfterFunc(session.ExpiresAt.Sub(now), func() { s.onExpiry(epoch) })
	}
}

// clearLocked drops the session: timer stopped before state mutation,
// persisted slot deleted best-effort. Callers hold s.mu.
func (s *SessionService) clearLocked(ctx context.Context) {
	s.stopTimerLocked()
	s.epoch++
	s.current = nil
	if err := s.store.DeleteSession(ctx); err != nil {
		s.logger.Error("failed to delete persisted session", slog.Any("error", err))
	}
}

func (s *SessionService) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// rehydrateLocked loads the persisted slot, adopting it when valid for
// this device and discarding it otherwise. Callers hold s.mu.
func (s *SessionService) rehydrateLocked(ctx context.Context) error {
	session, err := s.store.GetSession(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	if !session.ValidAt(s.clk.Now(), s.identity.Fingerprint()) {
		if err := s.store.DeleteSession(ctx); err != nil {
			s.logger.Error("failed to delete stale session", slog.Any("error", err))
		}
		return nil
	}

	s.adoptLocked(session)
	s.logger.Info("session resumed",
		slog.String("username", session.Username),
		slog.Time("expires_at", session.ExpiresAt))
	return nil
}

// onWarning fires the expiry warning and arms the expiry timer. The
// callback runs outside the lock so it can call Extend.
func (s *SessionService) onWarning(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.current == nil {
		s.mu.Unlock()
		return
	}

	remaining := s.current.ExpiresAt.Sub(s.clk.Now())
	s.timer = s.clk.AfterFunc(remaining, func() { s.onExpiry(epoch) })

	cb := s.events.OnSessionExpiring
	s.mu.Unlock()

	if cb != nil {
		s.fireSafely(func() {
			cb(SessionExpiringEvent{
				SecondsRemaining: int64(remaining.Seconds()),
				Extend: func() error {
					return s.Extend(context.Background())
				},
			})
		})
	}
}

// onExpiry ends the session on schedule and notifies the host. A
// panicking callback is contained; the session is already gone.
func (s *SessionService) onExpiry(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.current == nil {
		s.mu.Unlock()
		return
	}

	username := s.current.Username
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.clearLocked(ctx)
	cancel()

	cb := s.events.OnSessionExpired
	s.mu.Unlock()

	s.logger.Info("session expired", slog.String("username", username))
	if cb != nil {
		s.fireSafely(cb)
	}
}

// fireSafely runs a host callback, containing panics so a misbehaving
// handler cannot take the session manager down.
func (s *SessionService) fireSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session event callback panicked", slog.Any("panic", r))
		}
	}()
	fn()
}
