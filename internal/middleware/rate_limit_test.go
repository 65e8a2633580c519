package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func hitFrom(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/authenticate", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_OverLimitRejected(t *testing.T) {
	limited := RateLimitByIP(RateLimitConfig{Requests: 2, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	assert.Equal(t, http.StatusOK, hitFrom(limited, "203.0.113.10:1000").Code)
	assert.Equal(t, http.StatusOK, hitFrom(limited, "203.0.113.10:1001").Code)

	rec := hitFrom(limited, "203.0.113.10:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestRateLimitByIP_IsolatesSources(t *testing.T) {
	limited := RateLimitByIP(RateLimitConfig{Requests: 1, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	assert.Equal(t, http.StatusOK, hitFrom(limited, "203.0.113.10:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, hitFrom(limited, "203.0.113.10:1001").Code)

	// A different source address has its own budget.
	assert.Equal(t, http.StatusOK, hitFrom(limited, "203.0.113.99:1000").Code)
}

func TestDefaultAuthRateLimit(t *testing.T) {
	config := DefaultAuthRateLimit()
	assert.Equal(t, 5, config.Requests)
	assert.Equal(t, time.Minute, config.Window)
}
