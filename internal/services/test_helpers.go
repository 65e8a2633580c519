package services

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/calebwray/vaultgate/internal/auth"
	"github.com/calebwray/vaultgate/internal/clock"
	"github.com/calebwray/vaultgate/internal/models"
	pkglogger "github.com/calebwray/vaultgate/pkg/logger"
)

// MockCredentialStore implements repositories.CredentialStore for testing
type MockCredentialStore struct {
	GetProfileFunc    func(ctx context.Context, username string) (*models.UserAuthProfile, error)
	PutProfileFunc    func(ctx context.Context, profile *models.UserAuthProfile) error
	GetLockoutFunc    func(ctx context.Context, username string) (*models.LockoutState, error)
	PutLockoutFunc    func(ctx context.Context, username string, state *models.LockoutState) error
	GetSessionFunc    func(ctx context.Context) (*models.Session, error)
	PutSessionFunc    func(ctx context.Context, session *models.Session) error
	DeleteSessionFunc func(ctx context.Context) error
}

func (m *MockCredentialStore) GetProfile(ctx context.Context, username string) (*models.UserAuthProfile, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialStore) PutProfile(ctx context.Context, profile *models.UserAuthProfile) error {
	if m.PutProfileFunc != nil {
		return m.PutProfileFunc(ctx, profile)
	}
	return nil
}

func (m *MockCredentialStore) GetLockout(ctx context.Context, username string) (*models.LockoutState, error) {
	if m.GetLockoutFunc != nil {
		return m.GetLockoutFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialStore) PutLockout(ctx context.Context, username string, state *models.LockoutState) error {
	if m.PutLockoutFunc != nil {
		return m.PutLockoutFunc(ctx, username, state)
	}
	return nil
}

func (m *MockCredentialStore) GetSession(ctx context.Context) (*models.Session, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialStore) PutSession(ctx context.Context, session *models.Session) error {
	if m.PutSessionFunc != nil {
		return m.PutSessionFunc(ctx, session)
	}
	return nil
}

func (m *MockCredentialStore) DeleteSession(ctx context.Context) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx)
	}
	return nil
}

// MockBiometric implements auth.BiometricAuthenticator for testing and
// records how many times Verify was invoked.
type MockBiometric struct {
	AvailableFunc func(ctx context.Context) bool
	VerifyFunc    func(ctx context.Context, username string) (bool, error)
	VerifyCalls   int
}

func (m *MockBiometric) Available(ctx context.Context) bool {
	if m.AvailableFunc != nil {
		return m.AvailableFunc(ctx)
	}
	return true
}

func (m *MockBiometric) Verify(ctx context.Context, username string) (bool, error) {
	m.VerifyCalls++
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, username)
	}
	return true, nil
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	SendRecoveryConfirmationFunc func(ctx context.Context, email, username string) error
	SendLockoutNoticeFunc        func(ctx context.Context, email, username string, until time.Time) error
}

func (m *MockNotifier) SendRecoveryConfirmation(ctx context.Context, email, username string) error {
	if m.SendRecoveryConfirmationFunc != nil {
		return m.SendRecoveryConfirmationFunc(ctx, email, username)
	}
	return nil
}

func (m *MockNotifier) SendLockoutNotice(ctx context.Context, email, username string, until time.Time) error {
	if m.SendLockoutNoticeFunc != nil {
		return m.SendLockoutNoticeFunc(ctx, email, username, until)
	}
	return nil
}

// NewTestProfile creates a minimal profile for one username.
func NewTestProfile(username string, level models.SecurityLevel, methods ...models.MFAMethod) *models.UserAuthProfile {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.UserAuthProfile{
		Username:       username,
		MFAEnabled:     true,
		MFAMethods:     methods,
		SecurityLevel:  level,
		TrustedDevices: []models.TrustedDevice{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// testMasterKey is a fixed 32-byte key so sealed secrets round-trip
// across manager instances within one test.
func testMasterKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return key
}

// authFixture bundles a fully wired orchestrator over an in-memory
// store, a fake clock, and a fixed device fingerprint.
type authFixture struct {
	store     *memoryCredentialStore
	clk       *clock.Fake
	biometric *MockBiometric
	totp      *auth.TOTPManager
	identity  *auth.DeviceIdentity
	lockout   *LockoutService
	devices   *DeviceService
	sessions  *SessionService
	mfa       *MFAService
	auth      *AuthService
	events    *Events
}

func newAuthFixture() *authFixture {
	logger := slog.Default()
	auditLogger := pkglogger.NewAuditLogger(logger)
	store := newMemoryCredentialStore()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	identity := auth.NewFixedDeviceIdentity("test-device-fingerprint")
	biometric := &MockBiometric{}
	events := &Events{}
	notifier := NoopNotifier{}

	totpManager, err := auth.NewTOTPManager(testMasterKey(), "VaultGate")
	if err != nil {
		panic(err)
	}

	lockout := NewLockoutService(store, clk, DefaultLockoutConfig(), events, notifier, logger, auditLogger)
	devices := NewDeviceService(store, clk, logger)
	sessions := NewSessionService(store, identity, clk, SessionConfig{
		Timeout:       30 * time.Minute,
		WarningWindow: 60 * time.Second,
	}, events, logger)
	mfa := NewMFAService(store, totpManager, clk, notifier, logger, auditLogger)

	authService := NewAuthService(store, lockout, devices, sessions, biometric, identity, totpManager, events, logger, auditLogger)

	return &authFixture{
		store:     store,
		clk:       clk,
		biometric: biometric,
		totp:      totpManager,
		identity:  identity,
		lockout:   lockout,
		devices:   devices,
		sessions:  sessions,
		mfa:       mfa,
		auth:      authService,
		events:    events,
	}
}

// memoryCredentialStore is a map-backed store local to the test
// package, so service tests do not depend on a repositories
// implementation.
type memoryCredentialStore struct {
	profiles map[string]*models.UserAuthProfile
	lockouts map[string]*models.LockoutState
	session  *models.Session
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{
		profiles: make(map[string]*models.UserAuthProfile),
		lockouts: make(map[string]*models.LockoutState),
	}
}

func (s *memoryCredentialStore) GetProfile(ctx context.Context, username string) (*models.UserAuthProfile, error) {
	profile, ok := s.profiles[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *profile
	copied.MFAMethods = append([]models.MFAMethod(nil), profile.MFAMethods...)
	copied.TrustedDevices = append([]models.TrustedDevice(nil), profile.TrustedDevices...)
	return &copied, nil
}

func (s *memoryCredentialStore) PutProfile(ctx context.Context, profile *models.UserAuthProfile) error {
	copied := *profile
	s.profiles[profile.Username] = &copied
	return nil
}

func (s *memoryCredentialStore) GetLockout(ctx context.Context, username string) (*models.LockoutState, error) {
	state, ok := s.lockouts[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (s *memoryCredentialStore) PutLockout(ctx context.Context, username string, state *models.LockoutState) error {
	copied := *state
	s.lockouts[username] = &copied
	return nil
}

func (s *memoryCredentialStore) GetSession(ctx context.Context) (*models.Session, error) {
	if s.session == nil {
		return nil, models.ErrNotFound
	}
	copied := *s.session
	return &copied, nil
}

func (s *memoryCredentialStore) PutSession(ctx context.Context, session *models.Session) error {
	copied := *session
	s.session = &copied
	return nil
}

func (s *memoryCredentialStore) DeleteSession(ctx context.Context) error {
	s.session = nil
	return nil
}
