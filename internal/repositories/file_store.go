package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/calebwray/vaultgate/internal/auth"
	"github.com/calebwray/vaultgate/internal/models"
)

// FileStore persists each record as a flat JSON document under a data
// directory. Writes go through a temp file plus rename so a crash
// mid-write never leaves a corrupt record behind.
//
// Layout:
//
//	<dir>/profiles/<digest(username)>.json
//	<dir>/lockouts/<digest(username)>.json
//	<dir>/session.json
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the data directory tree if needed.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"", "profiles", "lockouts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) profilePath(username string) string {
	// Usernames are caller-supplied; hash them so they never reach the
	// filesystem as path components.
	return filepath.Join(s.dir, "profiles", auth.Digest([]byte(username))+".json")
}

func (s *FileStore) lockoutPath(username string) string {
	return filepath.Join(s.dir, "lockouts", auth.Digest([]byte(username))+".json")
}

func (s *FileStore) sessionPath() string {
	return filepath.Join(s.dir, "session.json")
}

func (s *FileStore) GetProfile(ctx context.Context, username string) (*models.UserAuthProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := &models.UserAuthProfile{}
	if err := readJSON(s.profilePath(username), profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *FileStore) PutProfile(ctx context.Context, profile *models.UserAuthProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.profilePath(profile.Username), profile)
}

func (s *FileStore) GetLockout(ctx context.Context, username string) (*models.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &models.LockoutState{}
	if err := readJSON(s.lockoutPath(username), state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *FileStore) PutLockout(ctx context.Context, username string, state *models.LockoutState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.lockoutPath(username), state)
}

func (s *FileStore) GetSession(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &models.Session{}
	if err := readJSON(s.sessionPath(), session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *FileStore) PutSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.sessionPath(), session)
}

func (s *FileStore) DeleteSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.sessionPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to read record: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}
