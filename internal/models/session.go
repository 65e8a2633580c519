package models

import "time"

// Session is a time-bounded proof of a prior successful authentication,
// bound to one device fingerprint. Exactly one session is persisted per
// device-process; creating a new one overwrites the prior slot.
type Session struct {
	Token             string    `json:"token"`
	Username          string    `json:"username"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// ValidAt reports whether the session is unexpired at now and bound to
// the given device fingerprint.
func (s *Session) ValidAt(now time.Time, fingerprint string) bool {
	return now.Before(s.ExpiresAt) && s.DeviceFingerprint == fingerprint
}
