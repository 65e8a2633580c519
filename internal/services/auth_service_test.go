package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/calebwray/vaultgate/internal/models"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Full Flow Tests
// ============================================================================

func TestAuthService_Authenticate_StandardLevelUntrustedRequiresPIN(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelStandard,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "alice", "1234"))

	// First round trip: no factors supplied, engine names what it needs.
	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	assert.False(t, result.Success)
	assert.Equal(t, models.CodeMissingFactors, result.Error)
	assert.Equal(t, []string{"pin"}, result.RequiredFactors)
	assert.NotEmpty(t, result.RequestID)

	// Second round trip with the PIN succeeds and trusts the device.
	result = f.auth.Authenticate(ctx, models.AuthAttempt{
		Username:  "alice",
		PIN:       "1234",
		RequestID: result.RequestID,
	})
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.SessionToken)
	require.NotNil(t, result.ExpiresAt)
	assert.True(t, result.RequiresDeviceVerification)
}

func TestAuthService_Authenticate_StandardLevelTrustedDeviceSkipsFactors(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelStandard,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "alice", "1234"))

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice", PIN: "1234"})
	require.True(t, result.Success)

	// The device is now trusted; a bare attempt passes on biometric alone.
	result = f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	assert.True(t, result.Success)
	assert.False(t, result.RequiresDeviceVerification)
}

func TestAuthService_Authenticate_HighLevelRequiresFirstEnabledFactor(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "bob", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelHigh,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "bob", "567890"))
	require.NoError(t, f.mfa.SetSecurityQuestion(ctx, "bob", "First pet?", "Rex"))

	// Only the first factor in the fixed order (pin) is demanded.
	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "bob"})
	require.Equal(t, models.CodeMissingFactors, result.Error)
	assert.Equal(t, []string{"pin"}, result.RequiredFactors)

	result = f.auth.Authenticate(ctx, models.AuthAttempt{Username: "bob", PIN: "567890"})
	assert.True(t, result.Success)
}

func TestAuthService_Authenticate_MaximumLevelRequiresAllEnrolledFactors(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "carol", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelMaximum,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "carol", "4321"))
	enrollment, err := f.mfa.SetupTOTP(ctx, "carol")
	require.NoError(t, err)
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.mfa.VerifyTOTPSetup(ctx, "carol", code))

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "carol"})
	require.Equal(t, models.CodeMissingFactors, result.Error)
	assert.Equal(t, []string{"pin", "totp"}, result.RequiredFactors)

	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	result = f.auth.Authenticate(ctx, models.AuthAttempt{
		Username: "carol",
		PIN:      "4321",
		TOTP:     code,
	})
	assert.True(t, result.Success)
}

func TestAuthService_Authenticate_MFADisabledSkipsAdditionalFactors(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "dave", RegisterOptions{
		MFAEnabled:    false,
		SecurityLevel: models.LevelMaximum,
	}))

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "dave"})
	assert.True(t, result.Success)
}

// ============================================================================
// Rejection Tests
// ============================================================================

func TestAuthService_Authenticate_BiometricFailure(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.biometric.VerifyFunc = func(ctx context.Context, username string) (bool, error) {
		return false, nil
	}

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{MFAEnabled: true}))

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	assert.False(t, result.Success)
	assert.Equal(t, models.CodeBiometricFailed, result.Error)

	state, err := f.store.GetLockout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), state.FailedAttempts)
}

func TestAuthService_Authenticate_UnknownUserFailsOpaquely(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "nobody"})
	assert.False(t, result.Success)
	// Unknown users get the generic code, not a distinguishable one.
	assert.Equal(t, models.CodeAuthError, result.Error)

	state, err := f.store.GetLockout(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, uint(1), state.FailedAttempts)
}

func TestAuthService_Authenticate_WrongPIN(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelStandard,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "alice", "1234"))

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice", PIN: "9999"})
	assert.False(t, result.Success)
	assert.Equal(t, models.CodeInvalidPIN, result.Error)

	state, err := f.store.GetLockout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), state.FailedAttempts)
}

func TestAuthService_Authenticate_MissingFactorsDoesNotCountAsFailure(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelStandard,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "alice", "1234"))

	for i := 0; i < 10; i++ {
		result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
		require.Equal(t, models.CodeMissingFactors, result.Error)
	}

	_, err := f.store.GetLockout(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAuthService_Authenticate_EmptyUsername(t *testing.T) {
	f := newAuthFixture()

	result := f.auth.Authenticate(context.Background(), models.AuthAttempt{Username: "   "})
	assert.False(t, result.Success)
	assert.Equal(t, models.CodeAuthError, result.Error)
}

// ============================================================================
// Lockout Interaction Tests
// ============================================================================

func TestAuthService_Authenticate_LockoutAfterThreshold(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.biometric.VerifyFunc = func(ctx context.Context, username string) (bool, error) {
		return false, nil
	}

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{MFAEnabled: true}))

	for i := 0; i < 5; i++ {
		result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
		require.Equal(t, models.CodeBiometricFailed, result.Error, "attempt %d", i+1)
	}

	// Sixth attempt is refused before any factor evaluation.
	callsBefore := f.biometric.VerifyCalls
	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	assert.Equal(t, models.CodeAccountLocked, result.Error)
	assert.Greater(t, result.RemainingLockTime, int64(0))
	assert.Equal(t, callsBefore, f.biometric.VerifyCalls, "locked account must not reach the biometric sensor")
}

func TestAuthService_Authenticate_LockExpiresButCounterSurvives(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.biometric.VerifyFunc = func(ctx context.Context, username string) (bool, error) {
		return false, nil
	}

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{MFAEnabled: true}))

	for i := 0; i < 5; i++ {
		f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	}

	f.clk.Advance(5*time.Minute + time.Second)

	// One more failure after the window re-locks immediately: the
	// counter was not reset by the lock expiring.
	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	require.Equal(t, models.CodeBiometricFailed, result.Error)

	result = f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	assert.Equal(t, models.CodeAccountLocked, result.Error)
}

func TestAuthService_Authenticate_SuccessResetsCounter(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelStandard,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "alice", "1234"))

	for i := 0; i < 4; i++ {
		result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice", PIN: "0000"})
		require.Equal(t, models.CodeInvalidPIN, result.Error)
	}

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice", PIN: "1234"})
	require.True(t, result.Success)

	state, err := f.store.GetLockout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(0), state.FailedAttempts)
}

func TestAuthService_Authenticate_InternalErrorCountsTowardLockout(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{MFAEnabled: true}))

	f.biometric.VerifyFunc = func(ctx context.Context, username string) (bool, error) {
		return false, fmt.Errorf("sensor offline")
	}

	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	assert.Equal(t, models.CodeAuthError, result.Error)

	state, err := f.store.GetLockout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), state.FailedAttempts)
}

// ============================================================================
// Event Tests
// ============================================================================

func TestAuthService_Authenticate_EmitsSuccessAndFailureEvents(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	var successes []AuthSuccessEvent
	var failures []AuthFailureEvent
	f.events.OnAuthSuccess = func(e AuthSuccessEvent) { successes = append(successes, e) }
	f.events.OnAuthFailure = func(e AuthFailureEvent) { failures = append(failures, e) }

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{
		MFAEnabled:    true,
		SecurityLevel: models.LevelStandard,
	}))
	require.NoError(t, f.mfa.SetPIN(ctx, "alice", "1234"))

	f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice", PIN: "0000"})
	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice", PIN: "1234"})
	require.True(t, result.Success)

	require.Len(t, successes, 1)
	assert.Equal(t, "alice", successes[0].Username)
	assert.Equal(t, result.SessionToken, successes[0].SessionToken)

	require.NotEmpty(t, failures)
	assert.Equal(t, string(models.CodeInvalidPIN), failures[0].ErrorCode)
}

func TestAuthService_Authenticate_EmitsAccountLockedEventOnce(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.biometric.VerifyFunc = func(ctx context.Context, username string) (bool, error) {
		return false, nil
	}

	var locked []AccountLockedEvent
	f.events.OnAccountLocked = func(e AccountLockedEvent) { locked = append(locked, e) }

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{MFAEnabled: true}))

	for i := 0; i < 5; i++ {
		f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	}
	// Further attempts against the locked account emit no second event.
	f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})

	require.Len(t, locked, 1)
	assert.Equal(t, "alice", locked[0].Username)
	assert.Equal(t, uint(5), locked[0].FailedAttempts)
}

// ============================================================================
// Session / Device Passthrough Tests
// ============================================================================

func TestAuthService_LogoutInvalidatesSession(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{MFAEnabled: false}))
	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	require.True(t, result.Success)

	session, err := f.auth.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)

	require.NoError(t, f.auth.Logout(ctx))

	_, err = f.auth.GetActiveSession(ctx)
	assert.ErrorIs(t, err, models.ErrNoSession)
}

func TestAuthService_TrustedDeviceRoundTrip(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, f.mfa.Register(ctx, "alice", RegisterOptions{MFAEnabled: false}))
	result := f.auth.Authenticate(ctx, models.AuthAttempt{Username: "alice"})
	require.True(t, result.Success)

	devices, err := f.auth.GetTrustedDevices(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "test-device-fingerprint", devices[0].Fingerprint)

	removed, err := f.auth.RemoveTrustedDevice(ctx, "alice", devices[0].Fingerprint)
	require.NoError(t, err)
	assert.True(t, removed)

	devices, err = f.auth.GetTrustedDevices(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, devices)
}
