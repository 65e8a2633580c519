package repositories

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/calebwray/vaultgate/internal/models"
)

// MemoryStore is an in-memory CredentialStore. It is the default for
// tests and useful for hosts that manage persistence themselves.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string][]byte
	lockouts map[string]models.LockoutState
	session  *models.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string][]byte),
		lockouts: make(map[string]models.LockoutState),
	}
}

// GetProfile returns a deep copy of the stored profile.
func (s *MemoryStore) GetProfile(ctx context.Context, username string) (*models.UserAuthProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.profiles[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	profile := &models.UserAuthProfile{}
	if err := json.Unmarshal(raw, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// PutProfile stores the whole profile record.
func (s *MemoryStore) PutProfile(ctx context.Context, profile *models.UserAuthProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Username] = raw
	return nil
}

func (s *MemoryStore) GetLockout(ctx context.Context, username string) (*models.LockoutState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.lockouts[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := state
	return &copied, nil
}

func (s *MemoryStore) PutLockout(ctx context.Context, username string, state *models.LockoutState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockouts[username] = *state
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, models.ErrNotFound
	}
	copied := *s.session
	return &copied, nil
}

func (s *MemoryStore) PutSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.session = &copied
	return nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
