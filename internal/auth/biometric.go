package auth

import "context"

// BiometricAuthenticator is the external platform authenticator that
// provides the first factor. The engine never implements the sensor
// itself; hosts plug in whatever the platform offers.
type BiometricAuthenticator interface {
	// Available reports whether a biometric check can be performed on
	// this device at all.
	Available(ctx context.Context) bool

	// Verify prompts for and checks the biometric factor. A false
	// return with nil error means the user failed the check; an error
	// means the check could not be performed.
	Verify(ctx context.Context, username string) (bool, error)
}

// StaticBiometric is a development authenticator with a fixed outcome.
type StaticBiometric struct {
	Succeed bool
}

func (s StaticBiometric) Available(ctx context.Context) bool { return true }

func (s StaticBiometric) Verify(ctx context.Context, username string) (bool, error) {
	return s.Succeed, nil
}
