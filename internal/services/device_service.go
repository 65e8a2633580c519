package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/calebwray/vaultgate/internal/clock"
	"github.com/calebwray/vaultgate/internal/models"
	"github.com/calebwray/vaultgate/internal/repositories"
	"github.com/google/uuid"
)

// DeviceService is the per-user registry of trusted device
// fingerprints. Devices enter the registry only through the
// orchestrator, after a complete successful authentication.
type DeviceService struct {
	store  repositories.CredentialStore
	clk    clock.Clock
	logger *slog.Logger
}

// NewDeviceService creates a trusted device registry.
func NewDeviceService(store repositories.CredentialStore, clk clock.Clock, logger *slog.Logger) *DeviceService {
	return &DeviceService{store: store, clk: clk, logger: logger}
}

// IsTrusted reports whether fingerprint is in the user's registry.
// Unknown users are simply untrusted.
func (s *DeviceService) IsTrusted(ctx context.Context, username, fingerprint string) (bool, error) {
	profile, err := s.store.GetProfile(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	for _, d := range profile.TrustedDevices {
		if d.Fingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

// Add records a fingerprint as trusted. Idempotent: adding a known
// fingerprint is a no-op. Returns whether the device was newly added.
func (s *DeviceService) Add(ctx context.Context, username, fingerprint, displayName string) (bool, error) {
	profile, err := s.store.GetProfile(ctx, username)
	if err != nil {
		return false, err
	}

	for _, d := range profile.TrustedDevices {
		if d.Fingerprint == fingerprint {
			return false, nil
		}
	}

	profile.TrustedDevices = append(profile.TrustedDevices, models.TrustedDevice{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		DisplayName: displayName,
		AddedAt:     s.clk.Now(),
	})
	profile.UpdatedAt = s.clk.Now()

	if err := s.store.PutProfile(ctx, profile); err != nil {
		return false, err
	}

	s.logger.Info("trusted device added",
		slog.String("username", username),
		slog.String("display_name", displayName))
	return true, nil
}

// List returns the user's trusted devices in insertion order.
func (s *DeviceService) List(ctx context.Context, username string) ([]models.TrustedDevice, error) {
	profile, err := s.store.GetProfile(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return []models.TrustedDevice{}, nil
		}
		return nil, err
	}
	return profile.TrustedDevices, nil
}

// Remove deletes a fingerprint from the registry, reporting whether it
// was present.
func (s *DeviceService) Remove(ctx context.Context, username, fingerprint string) (bool, error) {
	profile, err := s.store.GetProfile(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	kept := profile.TrustedDevices[:0]
	removed := false
	for _, d := range profile.TrustedDevices {
		if d.Fingerprint == fingerprint {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return false, nil
	}

	profile.TrustedDevices = kept
	profile.UpdatedAt = s.clk.Now()
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return false, err
	}

	s.logger.Info("trusted device removed", slog.String("username", username))
	return true, nil
}
