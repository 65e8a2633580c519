package auth

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestTOTPManager_NewTOTPManager_ValidKey(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "VaultGate")
	assert.NoError(t, err)
	assert.NotNil(t, tm)
}

func TestTOTPManager_NewTOTPManager_ShortKey(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31} {
		tm, err := NewTOTPManager(make([]byte, length), "VaultGate")
		assert.Error(t, err)
		assert.Nil(t, tm)
	}
}

// ============================================================================
// Enrollment Tests
// ============================================================================

func TestTOTPManager_GenerateEnrollment(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "VaultGate")
	require.NoError(t, err)

	enrollment, err := tm.GenerateEnrollment("alice")
	require.NoError(t, err)

	// 32-byte secret encodes to 52 base32 symbols
	assert.Len(t, enrollment.Secret, 52)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, enrollment.ProvisioningURI, "VaultGate")
	assert.Contains(t, enrollment.ProvisioningURI, "alice")
	assert.Contains(t, enrollment.QRCodeDataURL, "data:image/png;base64,")
	assert.NotEmpty(t, enrollment.EncryptedSecret)
	assert.NotEmpty(t, enrollment.Nonce)
}

func TestTOTPManager_GenerateEnrollment_UniqueSecrets(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "VaultGate")
	require.NoError(t, err)

	a, err := tm.GenerateEnrollment("alice")
	require.NoError(t, err)
	b, err := tm.GenerateEnrollment("alice")
	require.NoError(t, err)
	assert.NotEqual(t, a.Secret, b.Secret)
}

// ============================================================================
// Validation Tests
// ============================================================================

func TestTOTPManager_Validate_RoundTrip(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "VaultGate")
	require.NoError(t, err)

	enrollment, err := tm.GenerateEnrollment("alice")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	valid, err := tm.Validate(enrollment.EncryptedSecret, enrollment.Nonce, code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = tm.Validate(enrollment.EncryptedSecret, enrollment.Nonce, "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_Validate_SkewWindow(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "VaultGate")
	require.NoError(t, err)

	enrollment, err := tm.GenerateEnrollment("alice")
	require.NoError(t, err)

	// Previous and next 30-second steps are accepted; two steps out is not.
	for _, offset := range []time.Duration{-30 * time.Second, 30 * time.Second} {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now().Add(offset))
		require.NoError(t, err)
		valid, err := tm.Validate(enrollment.EncryptedSecret, enrollment.Nonce, code)
		require.NoError(t, err)
		assert.True(t, valid, "offset %s", offset)
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	valid, err := tm.Validate(enrollment.EncryptedSecret, enrollment.Nonce, code)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_Validate_WrongKeyCannotOpenSecret(t *testing.T) {
	tm1, err := NewTOTPManager(testKey(t), "VaultGate")
	require.NoError(t, err)
	tm2, err := NewTOTPManager(testKey(t), "VaultGate")
	require.NoError(t, err)

	enrollment, err := tm1.GenerateEnrollment("alice")
	require.NoError(t, err)

	_, err = tm2.Validate(enrollment.EncryptedSecret, enrollment.Nonce, "123456")
	assert.Error(t, err)
}

func TestTOTPManager_SealedSecretDiffersFromPlaintext(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "VaultGate")
	require.NoError(t, err)

	enrollment, err := tm.GenerateEnrollment("alice")
	require.NoError(t, err)
	assert.NotEqual(t, []byte(enrollment.Secret), enrollment.EncryptedSecret)
}
