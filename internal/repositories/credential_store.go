package repositories

import (
	"context"

	"github.com/calebwray/vaultgate/internal/models"
)

// CredentialStore is the persistence boundary for the engine: per-user
// auth profiles, per-user lockout records, and the single active-session
// slot. Implementations must be crash-consistent at whole-record
// granularity; last-writer-wins on a full record is acceptable.
//
// The store is injected into every service so tests can substitute the
// in-memory implementation.
type CredentialStore interface {
	GetProfile(ctx context.Context, username string) (*models.UserAuthProfile, error)
	PutProfile(ctx context.Context, profile *models.UserAuthProfile) error

	GetLockout(ctx context.Context, username string) (*models.LockoutState, error)
	PutLockout(ctx context.Context, username string, state *models.LockoutState) error

	// Session operations address the one persisted slot for this
	// device-process. GetSession returns models.ErrNotFound when empty.
	GetSession(ctx context.Context) (*models.Session, error)
	PutSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context) error
}
