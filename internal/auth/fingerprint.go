package auth

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DeviceIdentity derives a stable fingerprint for the running
// environment. The tuple excludes anything time-dependent so the same
// device re-derives the same fingerprint across process restarts;
// trusted-device recognition depends on that stability.
type DeviceIdentity struct {
	once        sync.Once
	fingerprint string
	override    string
}

// NewDeviceIdentity creates a provider that computes the fingerprint
// lazily, once per process.
func NewDeviceIdentity() *DeviceIdentity {
	return &DeviceIdentity{}
}

// NewFixedDeviceIdentity returns a provider with a fixed fingerprint.
// Test seam, also usable by hosts that supply their own device ID
// (mobile wrappers that know identifierForVendor, etc.).
func NewFixedDeviceIdentity(fingerprint string) *DeviceIdentity {
	return &DeviceIdentity{override: fingerprint}
}

// Fingerprint returns the device fingerprint, computing and caching it
// on first use.
func (d *DeviceIdentity) Fingerprint() string {
	if d.override != "" {
		return d.override
	}
	d.once.Do(func() {
		d.fingerprint = Digest([]byte(strings.Join(deviceAttributes(), "|")))
	})
	return d.fingerprint
}

// deviceAttributes collects the stable environment tuple. Attributes
// that cannot be read contribute a fixed placeholder so the tuple shape
// never varies.
func deviceAttributes() []string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	username := "unknown-user"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	locale := os.Getenv("LANG")
	if locale == "" {
		locale = "C"
	}

	return []string{
		hostname,
		runtime.GOOS,
		runtime.GOARCH,
		strconv.Itoa(runtime.NumCPU()),
		username,
		locale,
		standardZoneOffset(time.Local),
	}
}

// standardZoneOffset reports the location's standard-time UTC offset as
// "UTC-05:00". Zone abbreviations flip with daylight saving (EST vs
// EDT), which would re-derive a different fingerprint after a DST
// transition; the standard offset does not. It is probed at mid-winter
// and mid-summer, taking the smaller offset, since daylight saving only
// ever adds to standard time.
func standardZoneOffset(loc *time.Location) string {
	year := time.Now().Year()
	_, janOffset := time.Date(year, time.January, 1, 12, 0, 0, 0, loc).Zone()
	_, julOffset := time.Date(year, time.July, 1, 12, 0, 0, 0, loc).Zone()

	offset := janOffset
	if julOffset < offset {
		offset = julOffset
	}

	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, offset/3600, (offset%3600)/60)
}
