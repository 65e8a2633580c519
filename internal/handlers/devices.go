package handlers

import (
	"context"
	"net/http"

	"github.com/calebwray/vaultgate/internal/middleware"
	"github.com/calebwray/vaultgate/internal/models"
	pkghttp "github.com/calebwray/vaultgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// DeviceRegistry is the trusted-device surface used by the handlers.
type DeviceRegistry interface {
	GetTrustedDevices(ctx context.Context, username string) ([]models.TrustedDevice, error)
	RemoveTrustedDevice(ctx context.Context, username, fingerprint string) (bool, error)
}

// DeviceHandler handles trusted-device management requests.
type DeviceHandler struct {
	registry DeviceRegistry
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(registry DeviceRegistry) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

// List handles GET /devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "no active session")
		return
	}

	devices, err := h.registry.GetTrustedDevices(r.Context(), username)
	if err != nil {
		pkghttp.WriteInternalError(w, "failed to list trusted devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// Remove handles DELETE /devices/{fingerprint}
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "no active session")
		return
	}

	fingerprint := chi.URLParam(r, "fingerprint")
	if fingerprint == "" {
		pkghttp.WriteBadRequest(w, "fingerprint is required")
		return
	}

	removed, err := h.registry.RemoveTrustedDevice(r.Context(), username, fingerprint)
	if err != nil {
		pkghttp.WriteInternalError(w, "failed to remove trusted device")
		return
	}
	if !removed {
		pkghttp.WriteNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
