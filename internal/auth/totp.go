package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/hkdf"
)

const (
	totpPeriod = 30
	totpSkew   = 1 // accept current step ±1 for clock drift
)

// TOTPManager generates, seals, and validates time-based one-time
// password secrets. Secrets are stored only AES-256-GCM encrypted under
// a key derived from the configured master key.
type TOTPManager struct {
	sealKey []byte // 32-byte AES-256 key derived via HKDF
	issuer  string
}

// NewTOTPManager derives the secret-sealing key from masterKey via
// HKDF-SHA256. masterKey must be at least 32 bytes.
func NewTOTPManager(masterKey []byte, issuer string) (*TOTPManager, error) {
	if len(masterKey) < 32 {
		return nil, fmt.Errorf("master key must be at least 32 bytes, got %d", len(masterKey))
	}

	kdf := hkdf.New(sha256.New, masterKey, nil, []byte("vaultgate/totp-seal/v1"))
	sealKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, sealKey); err != nil {
		return nil, fmt.Errorf("failed to derive seal key: %w", err)
	}

	return &TOTPManager{sealKey: sealKey, issuer: issuer}, nil
}

// Enrollment holds the outputs of a secret generation: the base32
// secret (shown to the user once), the otpauth:// provisioning URI, and
// a PNG QR code of that URI as a data URL.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	QRCodeDataURL   string

	EncryptedSecret []byte
	Nonce           []byte
}

// GenerateEnrollment creates a fresh TOTP secret for accountName and
// returns the provisioning outputs plus the sealed secret for storage.
func (tm *TOTPManager) GenerateEnrollment(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32, // 256 bits -> 52 base32 symbols
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.sealSecret([]byte(key.Secret()))
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret: %w", err)
	}

	uri := key.URL()
	qr, err := qrcode.New(uri, qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: uri,
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		EncryptedSecret: encrypted,
		Nonce:           nonce,
	}, nil
}

// Validate checks a six-digit code against a sealed secret using the
// standard time-step algorithm: 30-second period, current step ±1.
func (tm *TOTPManager) Validate(encryptedSecret, nonce []byte, code string) (bool, error) {
	secret, err := tm.openSecret(encryptedSecret, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to open secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, string(secret), time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}
	return valid, nil
}

// sealSecret encrypts a secret with AES-256-GCM under the derived key.
func (tm *TOTPManager) sealSecret(secret []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(tm.sealKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secret, nil), nonce, nil
}

// openSecret decrypts a sealed secret.
func (tm *TOTPManager) openSecret(encrypted, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(tm.sealKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	secret, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return secret, nil
}
