package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calebwray/vaultgate/internal/database"
	"github.com/calebwray/vaultgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a Postgres-backed CredentialStore. Profiles and the
// session slot are whole-record upserts; trusted devices and MFA
// methods are embedded as JSONB so a profile write is one statement.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a Postgres credential store over an existing pool.
func NewPgStore(db *database.DB) *PgStore {
	return &PgStore{db: db.Pool}
}

func (s *PgStore) GetProfile(ctx context.Context, username string) (*models.UserAuthProfile, error) {
	profile := &models.UserAuthProfile{}
	var methodsJSON, devicesJSON []byte

	query := `
		SELECT username, mfa_enabled, mfa_methods, security_level,
		       pin_hash, totp_secret_encrypted, totp_secret_nonce, totp_pending,
		       security_question, security_answer_hash,
		       recovery_email, recovery_phone, trusted_devices,
		       created_at, updated_at
		FROM auth_profiles
		WHERE username = $1
	`

	err := s.db.QueryRow(ctx, query, username).Scan(
		&profile.Username,
		&profile.MFAEnabled,
		&methodsJSON,
		&profile.SecurityLevel,
		&profile.PINHash,
		&profile.TOTPSecretEncrypted,
		&profile.TOTPSecretNonce,
		&profile.TOTPPending,
		&profile.SecurityQuestion,
		&profile.SecurityAnswerHash,
		&profile.RecoveryEmail,
		&profile.RecoveryPhone,
		&devicesJSON,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if err := json.Unmarshal(methodsJSON, &profile.MFAMethods); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mfa methods: %w", err)
	}
	if err := json.Unmarshal(devicesJSON, &profile.TrustedDevices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trusted devices: %w", err)
	}

	return profile, nil
}

func (s *PgStore) PutProfile(ctx context.Context, profile *models.UserAuthProfile) error {
	methodsJSON, err := json.Marshal(profile.MFAMethods)
	if err != nil {
		return fmt.Errorf("failed to marshal mfa methods: %w", err)
	}
	devicesJSON, err := json.Marshal(profile.TrustedDevices)
	if err != nil {
		return fmt.Errorf("failed to marshal trusted devices: %w", err)
	}

	query := `
		INSERT INTO auth_profiles
			(username, mfa_enabled, mfa_methods, security_level,
			 pin_hash, totp_secret_encrypted, totp_secret_nonce, totp_pending,
			 security_question, security_answer_hash,
			 recovery_email, recovery_phone, trusted_devices,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (username) DO UPDATE SET
			mfa_enabled = EXCLUDED.mfa_enabled,
			mfa_methods = EXCLUDED.mfa_methods,
			security_level = EXCLUDED.security_level,
			pin_hash = EXCLUDED.pin_hash,
			totp_secret_encrypted = EXCLUDED.totp_secret_encrypted,
			totp_secret_nonce = EXCLUDED.totp_secret_nonce,
			totp_pending = EXCLUDED.totp_pending,
			security_question = EXCLUDED.security_question,
			security_answer_hash = EXCLUDED.security_answer_hash,
			recovery_email = EXCLUDED.recovery_email,
			recovery_phone = EXCLUDED.recovery_phone,
			trusted_devices = EXCLUDED.trusted_devices,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.Exec(ctx, query,
		profile.Username,
		profile.MFAEnabled,
		methodsJSON,
		profile.SecurityLevel,
		profile.PINHash,
		profile.TOTPSecretEncrypted,
		profile.TOTPSecretNonce,
		profile.TOTPPending,
		profile.SecurityQuestion,
		profile.SecurityAnswerHash,
		profile.RecoveryEmail,
		profile.RecoveryPhone,
		devicesJSON,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert auth profile: %w", database.MapPostgresError(err))
	}
	return nil
}

func (s *PgStore) GetLockout(ctx context.Context, username string) (*models.LockoutState, error) {
	state := &models.LockoutState{}

	query := `
		SELECT failed_attempts, lockout_until
		FROM lockout_states
		WHERE username = $1
	`

	err := s.db.QueryRow(ctx, query, username).Scan(&state.FailedAttempts, &state.LockoutUntil)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return state, nil
}

func (s *PgStore) PutLockout(ctx context.Context, username string, state *models.LockoutState) error {
	query := `
		INSERT INTO lockout_states (username, failed_attempts, lockout_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET
			failed_attempts = EXCLUDED.failed_attempts,
			lockout_until = EXCLUDED.lockout_until
	`

	_, err := s.db.Exec(ctx, query, username, state.FailedAttempts, state.LockoutUntil)
	if err != nil {
		return fmt.Errorf("failed to upsert lockout state: %w", database.MapPostgresError(err))
	}
	return nil
}

func (s *PgStore) GetSession(ctx context.Context) (*models.Session, error) {
	session := &models.Session{}

	query := `
		SELECT token, username, device_fingerprint, created_at, expires_at
		FROM active_session
		WHERE id = 1
	`

	err := s.db.QueryRow(ctx, query).Scan(
		&session.Token,
		&session.Username,
		&session.DeviceFingerprint,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return session, nil
}

func (s *PgStore) PutSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO active_session (id, token, username, device_fingerprint, created_at, expires_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			token = EXCLUDED.token,
			username = EXCLUDED.username,
			device_fingerprint = EXCLUDED.device_fingerprint,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := s.db.Exec(ctx, query,
		session.Token,
		session.Username,
		session.DeviceFingerprint,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", database.MapPostgresError(err))
	}
	return nil
}

func (s *PgStore) DeleteSession(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM active_session WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", database.MapPostgresError(err))
	}
	return nil
}
