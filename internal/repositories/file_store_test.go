package repositories

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calebwray/vaultgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_ProfileRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetProfile(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.PutProfile(ctx, testProfile("alice")))

	got, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	require.Len(t, got.TrustedDevices, 1)
	assert.Equal(t, "fp-1", got.TrustedDevices[0].Fingerprint)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.PutProfile(ctx, testProfile("alice")))

	until := time.Now().Add(5 * time.Minute).UTC()
	require.NoError(t, store.PutLockout(ctx, "alice", &models.LockoutState{
		FailedAttempts: 3,
		LockoutUntil:   &until,
	}))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	profile, err := reopened.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	state, err := reopened.GetLockout(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(3), state.FailedAttempts)
}

func TestFileStore_UsernameNeverReachesFilesystem(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	// A hostile username must not become a path component.
	hostile := "../../etc/passwd"
	require.NoError(t, store.PutProfile(ctx, testProfile(hostile)))

	got, err := store.GetProfile(ctx, hostile)
	require.NoError(t, err)
	assert.Equal(t, hostile, got.Username)

	entries, err := os.ReadDir(filepath.Join(dir, "profiles"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "..")
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".json"))
}

func TestFileStore_SessionSlot(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetSession(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.PutSession(ctx, &models.Session{
		Token:             "t1",
		Username:          "alice",
		DeviceFingerprint: "fp-1",
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
	}))

	got, err := store.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Token)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	require.NoError(t, store.DeleteSession(ctx))
	_, err = store.GetSession(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Deleting an already-empty slot is not an error.
	assert.NoError(t, store.DeleteSession(ctx))
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.PutProfile(ctx, testProfile("alice")))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "profiles"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".tmp-"))
}

func TestFileStore_RecordPermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.PutProfile(context.Background(), testProfile("alice")))

	entries, err := os.ReadDir(filepath.Join(dir, "profiles"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
