package services

import "time"

// AuthSuccessEvent is emitted when an authentication attempt fully
// succeeds and a session exists.
type AuthSuccessEvent struct {
	Username     string
	SessionToken string
	ExpiresAt    time.Time
}

// AuthFailureEvent is emitted for every rejected attempt.
type AuthFailureEvent struct {
	Username  string
	ErrorCode string
	Message   string
}

// AccountLockedEvent is emitted once when the failure threshold locks
// an account.
type AccountLockedEvent struct {
	Username        string
	FailedAttempts  uint
	LockoutDuration time.Duration
	LockoutUntil    time.Time
}

// SessionExpiringEvent is emitted once per session when it enters the
// warning window. Extend renews the session from inside the callback.
type SessionExpiringEvent struct {
	SecondsRemaining int64
	Extend           func() error
}

// Events holds the host-registered callbacks. Register once at
// construction; each callback fires at most once per transition. Nil
// callbacks are skipped.
type Events struct {
	OnAuthSuccess     func(AuthSuccessEvent)
	OnAuthFailure     func(AuthFailureEvent)
	OnAccountLocked   func(AccountLockedEvent)
	OnSessionExpiring func(SessionExpiringEvent)
	OnSessionExpired  func()
}
