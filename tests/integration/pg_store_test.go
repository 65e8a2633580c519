package integration

import (
	"context"
	"testing"
	"time"

	"github.com/calebwray/vaultgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*TestDB, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	tdb, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { tdb.Teardown(context.Background()) })
	return tdb, ctx
}

func TestPgStore_ProfileRoundTrip(t *testing.T) {
	tdb, ctx := setupStore(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	pin := "pin-hash"
	question := "First pet?"
	answerHash := "answer-hash"
	email := "alice@example.com"

	profile := &models.UserAuthProfile{
		Username:            "alice",
		MFAEnabled:          true,
		MFAMethods:          []models.MFAMethod{models.MethodPIN, models.MethodTOTP},
		SecurityLevel:       models.LevelHigh,
		PINHash:             &pin,
		TOTPSecretEncrypted: []byte{0x01, 0x02, 0x03},
		TOTPSecretNonce:     []byte{0x04, 0x05},
		TOTPPending:         true,
		SecurityQuestion:    &question,
		SecurityAnswerHash:  &answerHash,
		RecoveryEmail:       &email,
		TrustedDevices: []models.TrustedDevice{
			{ID: "d1", Fingerprint: "fp-1", DisplayName: "laptop", AddedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, tdb.Store.PutProfile(ctx, profile))

	got, err := tdb.Store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.MFAEnabled)
	assert.Equal(t, []models.MFAMethod{models.MethodPIN, models.MethodTOTP}, got.MFAMethods)
	assert.Equal(t, models.LevelHigh, got.SecurityLevel)
	require.NotNil(t, got.PINHash)
	assert.Equal(t, pin, *got.PINHash)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.TOTPSecretEncrypted)
	assert.True(t, got.TOTPPending)
	require.NotNil(t, got.RecoveryEmail)
	assert.Equal(t, email, *got.RecoveryEmail)
	require.Len(t, got.TrustedDevices, 1)
	assert.Equal(t, "fp-1", got.TrustedDevices[0].Fingerprint)
}

func TestPgStore_ProfileUpsertOverwrites(t *testing.T) {
	tdb, ctx := setupStore(t)

	now := time.Now().UTC()
	profile := &models.UserAuthProfile{
		Username:       "alice",
		SecurityLevel:  models.LevelStandard,
		MFAMethods:     []models.MFAMethod{},
		TrustedDevices: []models.TrustedDevice{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, tdb.Store.PutProfile(ctx, profile))

	profile.SecurityLevel = models.LevelMaximum
	profile.MFAEnabled = true
	require.NoError(t, tdb.Store.PutProfile(ctx, profile))

	got, err := tdb.Store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.LevelMaximum, got.SecurityLevel)
	assert.True(t, got.MFAEnabled)
}

func TestPgStore_GetProfileNotFound(t *testing.T) {
	tdb, ctx := setupStore(t)

	_, err := tdb.Store.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPgStore_LockoutRoundTrip(t *testing.T) {
	tdb, ctx := setupStore(t)

	_, err := tdb.Store.GetLockout(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	until := time.Now().UTC().Add(5 * time.Minute).Truncate(time.Microsecond)
	require.NoError(t, tdb.Store.PutLockout(ctx, "alice", &models.LockoutState{
		FailedAttempts: 5,
		LockoutUntil:   &until,
	}))

	got, err := tdb.Store.GetLockout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(5), got.FailedAttempts)
	require.NotNil(t, got.LockoutUntil)
	assert.True(t, got.LockoutUntil.Equal(until))

	// Clearing the lock keeps the row with a zeroed state.
	require.NoError(t, tdb.Store.PutLockout(ctx, "alice", &models.LockoutState{}))
	got, err = tdb.Store.GetLockout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(0), got.FailedAttempts)
	assert.Nil(t, got.LockoutUntil)
}

func TestPgStore_SessionSlot(t *testing.T) {
	tdb, ctx := setupStore(t)

	_, err := tdb.Store.GetSession(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, tdb.Store.PutSession(ctx, &models.Session{
		Token:             "t1",
		Username:          "alice",
		DeviceFingerprint: "fp-1",
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
	}))

	// A second write replaces the slot rather than adding a row.
	require.NoError(t, tdb.Store.PutSession(ctx, &models.Session{
		Token:             "t2",
		Username:          "bob",
		DeviceFingerprint: "fp-2",
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
	}))

	got, err := tdb.Store.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Token)
	assert.Equal(t, "bob", got.Username)

	var count int
	require.NoError(t, tdb.Pool.QueryRow(ctx, "SELECT count(*) FROM active_session").Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, tdb.Store.DeleteSession(ctx))
	_, err = tdb.Store.GetSession(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Deleting an empty slot is not an error.
	assert.NoError(t, tdb.Store.DeleteSession(ctx))
}

func TestPgStore_HealthCheck(t *testing.T) {
	tdb, ctx := setupStore(t)
	assert.NoError(t, tdb.DB.HealthCheck(ctx))
}
