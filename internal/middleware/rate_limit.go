package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/calebwray/vaultgate/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig bounds how fast one source address can hit the public
// authentication endpoints. It backstops the per-account lockout:
// lockout caps guesses per username, this caps guesses per IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit mirrors the lockout threshold: five attempts per
// minute.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 5, Window: time.Minute}
}

// RateLimitByIP rejects requests over the configured rate with the
// standard error envelope.
func RateLimitByIP(config RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many authentication attempts")
		}),
	)
}
